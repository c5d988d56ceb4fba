package processing

import (
	"reflect"
	"testing"
)

func reqRow(country, docType, label string, mandatory bool) *CountryDocumentRequirement {
	return &CountryDocumentRequirement{CountryCode: country, DocType: docType, Label: label, Mandatory: mandatory}
}

func TestMergeRequirementsCountryOverridesAllRegardlessOfOrder(t *testing.T) {
	global := reqRow(CountryAll, "passport", "Passport (global)", false)
	specific := reqRow("AE", "passport", "Passport (UAE)", true)
	other := reqRow(CountryAll, "photo", "Photo", true)

	orders := [][]*CountryDocumentRequirement{
		{global, specific, other},
		{specific, global, other},
		{other, specific, global},
		{other, global, specific},
	}
	want := []Requirement{
		{DocType: "passport", Label: "Passport (UAE)", Mandatory: true, Source: "AE"},
		{DocType: "photo", Label: "Photo", Mandatory: true, Source: CountryAll},
	}
	for i, rows := range orders {
		got := MergeRequirements(rows)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("order %d: want=%+v got=%+v", i, want, got)
		}
	}
}

func TestMergeRequirementsCountryCanRelaxMandatory(t *testing.T) {
	rows := []*CountryDocumentRequirement{
		reqRow("SA", "police_clearance", "PCC", false),
		reqRow(CountryAll, "police_clearance", "PCC", true),
	}
	got := MergeRequirements(rows)
	if len(got) != 1 {
		t.Fatalf("len: want=1 got=%d", len(got))
	}
	if got[0].Mandatory {
		t.Fatalf("mandatory: want=false got=true")
	}
	if got[0].Source != "SA" {
		t.Fatalf("source: want=SA got=%s", got[0].Source)
	}
}

func TestMergeRequirementsSkipsBlankAndNil(t *testing.T) {
	got := MergeRequirements([]*CountryDocumentRequirement{nil, reqRow("", " ", "x", true), reqRow("", "cv", "CV", true)})
	if len(got) != 1 || got[0].DocType != "cv" || got[0].Source != CountryAll {
		t.Fatalf("unexpected merge: %+v", got)
	}
}

func TestMissingDocTypes(t *testing.T) {
	reqs := []Requirement{
		{DocType: "passport", Mandatory: true},
		{DocType: "photo", Mandatory: true},
		{DocType: "degree", Mandatory: true},
		{DocType: "reference", Mandatory: false},
	}
	docs := []*ProcessingDocument{
		{DocType: "passport", Status: DocumentStatusVerified},
		{DocType: "photo", Status: DocumentStatusPending},
		{DocType: "degree", Status: DocumentStatusRejected},
	}
	got := MissingDocTypes(reqs, docs)
	if !reflect.DeepEqual(got, []string{"degree"}) {
		t.Fatalf("missing: want=[degree] got=%v", got)
	}

	docs = append(docs, &ProcessingDocument{DocType: "degree", Status: DocumentStatusPending})
	if got := MissingDocTypes(reqs, docs); len(got) != 0 {
		t.Fatalf("missing after re-upload: want=[] got=%v", got)
	}
}
