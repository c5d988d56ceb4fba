package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/processing-backend/internal/platform/ctxutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
)

type stubAuth struct {
	users map[string]uuid.UUID
}

func (s stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	id, ok := s.users[token]
	if !ok {
		return ctx, errors.New("invalid token")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: id}), nil
}

func (s stubAuth) IssueAccessToken(userID uuid.UUID) (string, error) { return "", nil }
func (s stubAuth) GetAccessTTL() time.Duration                    { return time.Hour }

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	user := uuid.New()
	mw := NewAuthMiddleware(logger.Nop(), stubAuth{users: map[string]uuid.UUID{"good": user, "nil": uuid.Nil}})

	r := gin.New()
	r.Use(mw.RequireAuth())
	r.GET("/me", func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.String(http.StatusOK, rd.UserID.String())
	})

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Token good", http.StatusUnauthorized},
		{"Bearer nil", http.StatusForbidden},
		{"bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%q: want=%d got=%d", tc.header, tc.status, rec.Code)
		}
		if tc.status == http.StatusOK && rec.Body.String() != user.String() {
			t.Fatalf("actor: want=%s got=%s", user, rec.Body.String())
		}
	}
}

func TestAttachTraceContextEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "req-42" || rec.Header().Get("X-Request-Id") != "req-42" {
		t.Fatalf("request id: body=%q header=%q", rec.Body.String(), rec.Header().Get("X-Request-Id"))
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace id header missing")
	}
}
