package logic

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/courtvision/nba-analysis/internal/models"
)

const trainingRunsSchema = `
	CREATE TABLE IF NOT EXISTS training_runs (
		run_id      String,
		target      LowCardinality(String),
		version     String,
		candidate   LowCardinality(String),
		r2          Float64,
		mae         Float64,
		n_features  UInt32,
		winner      Bool,
		trained_at  DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (target, trained_at)
`

// ClickHouseHistory is the RunHistory backed by ClickHouse
type ClickHouseHistory struct {
	ch driver.Conn
}

// NewRunHistory stores training history in the ClickHouse training_runs table
func NewRunHistory(ch driver.Conn) *ClickHouseHistory {
	return &ClickHouseHistory{ch: ch}
}

// EnsureSchema creates training_runs when missing
func (h *ClickHouseHistory) EnsureSchema(ctx context.Context) error {
	return h.ch.Exec(ctx, trainingRunsSchema)
}

func (h *ClickHouseHistory) Record(ctx context.Context, records []models.RunRecord) error {
	batch, err := h.ch.PrepareBatch(ctx, `
		INSERT INTO training_runs (
			run_id, target, version, candidate, r2, mae, n_features, winner, trained_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range records {
		if err := batch.Append(
			r.RunID,
			r.Target,
			r.Version,
			r.Candidate,
			r.R2,
			r.MAE,
			r.NFeatures,
			r.Winner,
			r.TrainedAt,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("append training run: %w", err)
		}
	}
	return batch.Send()
}

func (h *ClickHouseHistory) History(ctx context.Context, target string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := h.ch.Query(ctx, `
		SELECT run_id, target, version, candidate, r2, mae, n_features, winner, trained_at
		FROM training_runs
		WHERE target = ?
		ORDER BY trained_at DESC, candidate ASC
		LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		if err := rows.Scan(&r.RunID, &r.Target, &r.Version, &r.Candidate, &r.R2, &r.MAE, &r.NFeatures, &r.Winner, &r.TrainedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
