package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/processing-backend/internal/domain/aggregates"
	"github.com/yungbote/processing-backend/internal/platform/apierr"
)

func respond(t *testing.T, err error) (int, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondServiceError(c, err)
	var env ErrorEnvelope
	if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
		t.Fatalf("decode body: %v", jerr)
	}
	return rec.Code, env
}

func TestRespondServiceErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domainagg.Validation("op", "missing mandatory documents: passport", "passport"), http.StatusBadRequest, "validation"},
		{domainagg.NotFound("op", "reminder"), http.StatusNotFound, "not_found"},
		{domainagg.NewError(domainagg.CodeInvariantViolation, "op", "closed", nil), http.StatusConflict, "invariant_violation"},
		{domainagg.NewError(domainagg.CodeConflict, "op", "raced", nil), http.StatusConflict, "conflict"},
		{apierr.BadRequest("invalid_step_id", errors.New("bad uuid")), http.StatusBadRequest, "invalid_step_id"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, env := respond(t, tc.err)
		if status != tc.status || env.Error.Code != tc.code {
			t.Fatalf("%v: want=%d/%s got=%d/%s", tc.err, tc.status, tc.code, status, env.Error.Code)
		}
	}
}

func TestRespondServiceErrorKeepsDetailsAndHidesInternals(t *testing.T) {
	_, env := respond(t, domainagg.Validation("op", "missing mandatory documents: passport, visa", "passport", "visa"))
	if len(env.Error.Details) != 2 || env.Error.Details[0] != "passport" {
		t.Fatalf("details: want=[passport visa] got=%v", env.Error.Details)
	}
	_, env = respond(t, errors.New("dial tcp 10.0.0.5:5432"))
	if env.Error.Message != "internal error" {
		t.Fatalf("message: want=%q got=%q", "internal error", env.Error.Message)
	}
}
