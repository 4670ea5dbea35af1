package logic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/courtvision/nba-analysis/internal/models"
)

func TestClickHouseHistory_Record(t *testing.T) {
	conn := &MockConn{}
	history := NewRunHistory(conn)
	trainedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := history.Record(context.Background(), []models.RunRecord{
		{RunID: "run-1", Target: "3P", Version: "v1_20250301_1200", Candidate: "RandomForest", R2: 0.81, MAE: 0.4, NFeatures: 5, TrainedAt: trainedAt},
		{RunID: "run-1", Target: "3P", Version: "v1_20250301_1200", Candidate: "GradientBoosting", R2: 0.86, MAE: 0.3, NFeatures: 7, Winner: true, TrainedAt: trainedAt},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !conn.Batch.Sent {
		t.Error("batch was not sent")
	}
	if len(conn.Batch.Appended) != 2 {
		t.Fatalf("appended %d rows, want 2", len(conn.Batch.Appended))
	}
	if got := conn.Batch.Appended[1][3]; got != "GradientBoosting" {
		t.Errorf("candidate column = %v", got)
	}
	if got := conn.Batch.Appended[1][7]; got != true {
		t.Errorf("winner column = %v, want true", got)
	}
}

func TestClickHouseHistory_RecordAbortsOnAppendError(t *testing.T) {
	conn := &MockConn{Batch: &MockBatch{AppendErr: errors.New("type mismatch")}}
	err := NewRunHistory(conn).Record(context.Background(), []models.RunRecord{{RunID: "run-1"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !conn.Batch.Aborted || conn.Batch.Sent {
		t.Errorf("aborted = %v, sent = %v; want aborted only", conn.Batch.Aborted, conn.Batch.Sent)
	}
}

func TestClickHouseHistory_History(t *testing.T) {
	trainedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	conn := &MockConn{Rows: [][]interface{}{
		{"run-2", "3PA", "v2_20250301_1200", "RandomForest", 0.7, 0.5, uint32(4), true, trainedAt},
	}}

	records, err := NewRunHistory(conn).History(context.Background(), "3PA", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 || records[0].Version != "v2_20250301_1200" || !records[0].Winner {
		t.Errorf("records = %+v", records)
	}
	if len(conn.QueryArgs) != 2 || conn.QueryArgs[0] != "3PA" || conn.QueryArgs[1] != 50 {
		t.Errorf("query args = %v, want [3PA 50]", conn.QueryArgs)
	}
}

func TestClickHouseHistory_EnsureSchema(t *testing.T) {
	conn := &MockConn{}
	if err := NewRunHistory(conn).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(conn.ExecQueries) != 1 || !strings.Contains(conn.ExecQueries[0], "training_runs") {
		t.Errorf("exec = %v", conn.ExecQueries)
	}
}
