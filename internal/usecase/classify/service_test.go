package classify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

type mockCodes struct {
	records []domain.ClassificationRecord
	err     error
	calls   int
	prefix  string
}

func (m *mockCodes) LookupByPrefix(_ context.Context, prefix string) ([]domain.ClassificationRecord, error) {
	m.calls++
	m.prefix = prefix
	return m.records, m.err
}

type mockSearch struct {
	evidence []domain.Evidence
	err      error
	calls    int
}

func (m *mockSearch) Search(_ context.Context, _ string, _ int) ([]domain.Evidence, error) {
	m.calls++
	return m.evidence, m.err
}

func newTestService(codes *mockCodes, search *mockSearch) *Service {
	return New(codes, search, zap.NewNop())
}

func scheduleEvidence(code string, meta map[string]string) domain.Evidence {
	m := map[string]string{metaCode: code}
	for k, v := range meta {
		m[k] = v
	}
	return domain.Evidence{ID: code, Content: "schedule row text", Meta: m}
}

func TestCandidatesDigitQueryHitsCodeLookup(t *testing.T) {
	codes := &mockCodes{records: []domain.ClassificationRecord{
		{Code: "0101300000", Description: "Asses"},
	}}
	search := &mockSearch{}
	svc := newTestService(codes, search)

	got, err := svc.Candidates(context.Background(), "0101.30", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Code != "0101300000" {
		t.Errorf("unexpected candidates: %+v", got)
	}
	if codes.calls != 1 {
		t.Errorf("code lookup calls = %d, expected 1", codes.calls)
	}
	if search.calls != 0 {
		t.Error("digit query must not hit retrieval")
	}
}

func TestCandidatesDigitQueryRespectsLimit(t *testing.T) {
	codes := &mockCodes{records: []domain.ClassificationRecord{
		{Code: "0101210010"}, {Code: "0101210020"}, {Code: "0101290000"},
	}}
	svc := newTestService(codes, &mockSearch{})

	got, err := svc.Candidates(context.Background(), "0101", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, expected 2", len(got))
	}
}

func TestCandidatesFreeTextHitsRetrieval(t *testing.T) {
	search := &mockSearch{evidence: []domain.Evidence{
		scheduleEvidence("8471.30.01.00", map[string]string{
			metaDescription:  "Portable automatic data processing machines",
			metaGeneralRate:  "Free",
			metaSpecificRate: "Free (A,AU,CL)",
			metaColumn2Rate:  "35%",
			"Spec_Level_1":   "Machinery",
			"Spec_Level_2":   "nan",
			"Spec_Level_3":   "Computers",
		}),
	}}
	codes := &mockCodes{}
	svc := newTestService(codes, search)

	got, err := svc.Candidates(context.Background(), "laptop computers", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codes.calls != 0 {
		t.Error("free-text query must not hit the code lookup")
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	rec := got[0]
	if rec.Code != "8471300100" {
		t.Errorf("code = %q, expected normalized digits", rec.Code)
	}
	if rec.GeneralRate != "Free" || rec.Column2Rate != "35%" {
		t.Errorf("rates not carried over: %+v", rec)
	}
	if len(rec.SpecLevels) != 2 || rec.SpecLevels[0] != "Machinery" || rec.SpecLevels[1] != "Computers" {
		t.Errorf("spec levels must drop nan and keep order: %v", rec.SpecLevels)
	}
	if rec.FreeText != "schedule row text" {
		t.Errorf("free text = %q", rec.FreeText)
	}
}

func TestCandidatesSkipsPassagesWithoutCode(t *testing.T) {
	search := &mockSearch{evidence: []domain.Evidence{
		{ID: "note-1", Content: "General note about chapter 84", Meta: map[string]string{}},
		scheduleEvidence("8471.30", nil),
	}}
	svc := newTestService(&mockCodes{}, search)

	got, err := svc.Candidates(context.Background(), "computers", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Code != "847130" {
		t.Errorf("narrative passages must be skipped: %+v", got)
	}
}

func TestCandidatesEmptyQuery(t *testing.T) {
	svc := newTestService(&mockCodes{}, &mockSearch{})

	if _, err := svc.Candidates(context.Background(), "  ", 10); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCandidatesLookupErrorPropagates(t *testing.T) {
	codes := &mockCodes{err: errors.New("pg down")}
	svc := newTestService(codes, &mockSearch{})

	if _, err := svc.Candidates(context.Background(), "0101", 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestBestMatchReturnsTopCandidate(t *testing.T) {
	codes := &mockCodes{records: []domain.ClassificationRecord{
		{Code: "0101210010"}, {Code: "0101210020"},
	}}
	svc := newTestService(codes, &mockSearch{})

	rec, err := svc.BestMatch(context.Background(), "0101.21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != "0101210010" {
		t.Errorf("code = %q", rec.Code)
	}
}

func TestBestMatchNotFound(t *testing.T) {
	svc := newTestService(&mockCodes{}, &mockSearch{})

	_, err := svc.BestMatch(context.Background(), "9999")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
