package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridrive/sigproof/internal/domain"
	"github.com/veridrive/sigproof/internal/ports"
)

// PostgresStore persists per-session verdicts and latency results.
// Inserts are idempotent via the (session_id, detection_id, source_id)
// unique key, so journal replays after a crash cannot duplicate rows.
type PostgresStore struct {
	db            *sql.DB
	resultsTable  string
	verdictsTable string
}

func NewPostgresStore(db *sql.DB, resultsTable, verdictsTable string) *PostgresStore {
	if resultsTable == "" {
		resultsTable = "latency_results"
	}
	if verdictsTable == "" {
		verdictsTable = "test_verdicts"
	}
	return &PostgresStore{db: db, resultsTable: resultsTable, verdictsTable: verdictsTable}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) WriteResults(sessionID string, results []*domain.LatencyResult) error {
	if len(results) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.resultsTable)
	b.WriteString(" (session_id, detection_id, source_id, detection_ts, signal_ts, latency_ms, precision_us, within_tolerance) VALUES ")

	args := make([]any, 0, len(results)*8)
	for i, r := range results {
		if i > 0 {
			b.WriteString(",")
		}
		base := len(args)
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			sessionID,
			r.DetectionID,
			r.SignalSourceID,
			r.DetectionTimestamp,
			r.SignalTimestamp,
			r.LatencyMs,
			r.PrecisionUs,
			r.WithinTolerance,
		)
	}

	b.WriteString(" ON CONFLICT (session_id, detection_id, source_id) DO NOTHING")

	if _, err := s.db.Exec(b.String(), args...); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveVerdict(v *domain.TestVerdict) error {
	criteria, err := json.Marshal(v.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	metrics, err := json.Marshal(v.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (session_id, criteria, metrics, criteria_met, result) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (session_id) DO NOTHING",
		s.verdictsTable)

	if _, err := s.db.Exec(query, v.SessionID, criteria, metrics, v.CriteriaMet, string(v.Result)); err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

var _ ports.ResultStore = (*PostgresStore)(nil)
