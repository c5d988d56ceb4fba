package processing

import (
	"sort"
	"strings"
)

// MergeRequirements merges global and country-specific rules into one requirement per docType.
// A country-specific rule always overrides the CountryAll rule for the same docType. The result is
// sorted by DocType and does not depend on the order of rows.
func MergeRequirements(rows []*CountryDocumentRequirement) []Requirement {
	byType := make(map[string]Requirement, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		docType := strings.TrimSpace(row.DocType)
		if docType == "" {
			continue
		}
		cand := Requirement{
			DocType:   docType,
			Label:     row.Label,
			Mandatory: row.Mandatory,
			Source:    normalizeCountry(row.CountryCode),
		}
		cur, ok := byType[docType]
		if !ok || outranks(cand, cur) {
			byType[docType] = cand
		}
	}
	out := make([]Requirement, 0, len(byType))
	for _, r := range byType {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocType < out[j].DocType })
	return out
}

// outranks reports whether a should replace b for the same docType.
func outranks(a, b Requirement) bool {
	aSpecific := a.Source != CountryAll
	bSpecific := b.Source != CountryAll
	if aSpecific != bSpecific {
		return aSpecific
	}
	// Same class: only reachable with duplicate rows. Break ties without relying on row order.
	if a.Mandatory != b.Mandatory {
		return a.Mandatory
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Label < b.Label
}

// MandatoryDocTypes returns the docTypes of mandatory requirements, sorted.
func MandatoryDocTypes(reqs []Requirement) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.Mandatory {
			out = append(out, r.DocType)
		}
	}
	sort.Strings(out)
	return out
}

// MissingDocTypes returns the mandatory docTypes with no pending or verified document. A docType whose
// only documents are rejected counts as missing.
func MissingDocTypes(reqs []Requirement, docs []*ProcessingDocument) []string {
	covered := map[string]bool{}
	for _, d := range docs {
		if d == nil {
			continue
		}
		switch d.Status {
		case DocumentStatusVerified, DocumentStatusPending:
			covered[strings.TrimSpace(d.DocType)] = true
		}
	}
	missing := []string{}
	for _, docType := range MandatoryDocTypes(reqs) {
		if !covered[docType] {
			missing = append(missing, docType)
		}
	}
	return missing
}

// NormalizeCountry upper-cases a country code; empty becomes CountryAll.
func NormalizeCountry(code string) string {
	return normalizeCountry(code)
}

func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return CountryAll
	}
	return code
}
