// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package deadletter implements [queue.DeadLetterWriter] against
system.worker_failure: the durable record of a job that exhausted its
retries, so an operator can inspect and replay it without having to mine
application logs.
*/
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taibuivan/mangatrack/internal/platform/database/schema"
	"github.com/taibuivan/mangatrack/internal/platform/dberr"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// Writer persists exhausted jobs to system.worker_failure.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter constructs a PostgreSQL-backed [Writer].
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// WriteFailure implements [queue.DeadLetterWriter].
func (w *Writer) WriteFailure(ctx context.Context, queueName, jobID string, payload json.RawMessage, cause string, attempts int) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6, NOW())",
		schema.SystemWorkerFailure.Table,
		schema.SystemWorkerFailure.ID, schema.SystemWorkerFailure.Queue, schema.SystemWorkerFailure.JobID,
		schema.SystemWorkerFailure.Payload, schema.SystemWorkerFailure.Error, schema.SystemWorkerFailure.Attempts,
		schema.SystemWorkerFailure.CreatedAt,
	)

	_, err := w.pool.Exec(ctx, query, uuid.New(), queueName, jobID, payload, cause, attempts)
	if err != nil {
		return dberr.Wrap(err, "write worker failure")
	}
	return nil
}

// PruneOlderThan deletes worker_failure rows created before cutoff, part
// of the Cleanup Scheduler's retention sweep (30 days by default). It
// returns the number of rows removed.
func (w *Writer) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s < $1",
		schema.SystemWorkerFailure.Table, schema.SystemWorkerFailure.CreatedAt)

	tag, err := w.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, dberr.Wrap(err, "prune worker failures")
	}
	return tag.RowsAffected(), nil
}
