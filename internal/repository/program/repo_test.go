package program

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*Repo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return New(db), mock, func() { _ = db.Close() }
}

func programColumns() []string {
	return []string{"id", "tariff_program", "group", "countries", "description"}
}

func TestFindByCodesParsesCountries(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows(programColumns()).
		AddRow(int64(1), "A", "GSP", "Ghana; Kenya ;Peru", "Generalized System of Preferences").
		AddRow(int64(2), "AU", "FTA", "Australia", "Australia FTA")

	mock.ExpectQuery("SELECT id, tariff_program").
		WithArgs("A", "AU").
		WillReturnRows(rows)

	rules, err := repo.FindByCodes(context.Background(), []string{"A", "AU"})
	if err != nil {
		t.Fatalf("FindByCodes failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}

	gsp := rules[0]
	if gsp.ProgramCode != "A" || gsp.ID != 1 {
		t.Errorf("unexpected first rule: %+v", gsp)
	}
	for _, country := range []string{"Ghana", "Kenya", "Peru"} {
		if !gsp.EligibleFor(country) {
			t.Errorf("expected %s eligible under GSP", country)
		}
	}
	if gsp.EligibleFor("Australia") {
		t.Error("Australia must not be eligible under GSP")
	}
	if !rules[1].EligibleFor("Australia") {
		t.Error("expected Australia eligible under AU")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByCodesEmptyInputSkipsQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rules, err := repo.FindByCodes(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules != nil {
		t.Errorf("expected nil rules, got %v", rules)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByCodesNullCountries(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows(programColumns()).
		AddRow(int64(7), "K", "FTA", nil, nil)

	mock.ExpectQuery("SELECT id, tariff_program").
		WithArgs("K").
		WillReturnRows(rows)

	rules, err := repo.FindByCodes(context.Background(), []string{"K"})
	if err != nil {
		t.Fatalf("FindByCodes failed: %v", err)
	}
	if rules[0].EligibleFor("") || rules[0].EligibleFor("Korea") {
		t.Errorf("rule with no countries must match nothing: %+v", rules[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
