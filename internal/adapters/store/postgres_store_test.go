package store

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/veridrive/sigproof/internal/domain"
)

func TestWriteResultsBatchInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewPostgresStore(db, "", "")

	mock.ExpectExec("INSERT INTO latency_results").
		WithArgs(
			"sess-1", "d1", "gpio-0", 10.0, 10.003, 3.0, 3000.0, true,
			"sess-1", "d2", "can-0", 11.0, 10.998, -2.0, -1.0, true,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	results := []*domain.LatencyResult{
		{DetectionID: "d1", SignalSourceID: "gpio-0", DetectionTimestamp: 10.0, SignalTimestamp: 10.003, LatencyMs: 3.0, PrecisionUs: 3000.0, WithinTolerance: true},
		{DetectionID: "d2", SignalSourceID: "can-0", DetectionTimestamp: 11.0, SignalTimestamp: 10.998, LatencyMs: -2.0, PrecisionUs: domain.PrecisionUnknown, WithinTolerance: true},
	}

	if err := s.WriteResults("sess-1", results); err != nil {
		t.Fatalf("write results: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWriteResultsEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewPostgresStore(db, "", "")
	if err := s.WriteResults("sess-1", nil); err != nil {
		t.Fatalf("empty write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveVerdict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewPostgresStore(db, "", "custom_verdicts")

	mock.ExpectExec("INSERT INTO custom_verdicts").
		WithArgs("sess-1", sqlmock.AnyArg(), sqlmock.AnyArg(), 6, "PASS").
		WillReturnResult(sqlmock.NewResult(0, 1))

	v := &domain.TestVerdict{
		SessionID:   "sess-1",
		CriteriaMet: 6,
		Result:      domain.OutcomePass,
	}
	if err := s.SaveVerdict(v); err != nil {
		t.Fatalf("save verdict: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
