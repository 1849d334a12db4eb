package store

import (
	"context"
	"database/sql"

	"trace-service/internal/models"
)

// InsertEventRecord mirrors one ledger transition into the audit table.
func (s *Store) InsertEventRecord(ctx context.Context, rec *models.EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_records (from_address, token_id, state, block_number, log_index, tx_hash, block_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		rec.From, rec.TokenID, rec.State, rec.BlockNumber, rec.LogIndex, rec.TxHash, rec.BlockTime)
	return err
}

// ListEventRecordsByToken returns the mirrored transition history of a token,
// oldest first.
func (s *Store) ListEventRecordsByToken(ctx context.Context, tokenID uint64) ([]models.EventRecord, error) {
	var records []models.EventRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT from_address, token_id, state, block_number, log_index, tx_hash, block_time
		 FROM event_records WHERE token_id = $1
		 ORDER BY block_number, log_index`, tokenID)
	return records, err
}

// InsertTelemetrySample persists one sensor reading.
func (s *Store) InsertTelemetrySample(ctx context.Context, sample *models.TelemetrySample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_samples (value, sampled_at) VALUES ($1, $2)`,
		sample.Value, sample.At)
	return err
}

// IsEventProcessed reports whether a broker event was already handled.
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM processed_events WHERE event_id = $1`, eventID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkEventProcessed records a handled broker event for idempotent replay.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, processed_at)
		 VALUES ($1, NOW())
		 ON CONFLICT (event_id) DO NOTHING`, eventID)
	return err
}
