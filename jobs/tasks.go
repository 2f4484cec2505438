package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit:append tasks.
	QueueAudit = audit.QueueName
	// TaskAuditAppend persists an audit entry produced by audit.QueueSink.
	TaskAuditAppend = audit.TaskAppend
)

// AuditAppendJob drains queued audit entries into a durable sink.
type AuditAppendJob struct {
	sink    audit.Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAuditAppendJob constructs the job.
func NewAuditAppendJob(sink audit.Sink, logger *slog.Logger, metrics *observability.Metrics) *AuditAppendJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditAppendJob{sink: sink, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditAppend tasks. Malformed payloads are not
// retried; a redelivered entry that already exists counts as written.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { j.metrics.JobProcessed(TaskAuditAppend, err) }()

	entry, err := audit.DecodeAppendTask(t.Payload())
	if err != nil {
		j.logger.Error("audit append: malformed payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := j.sink.Write(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			j.logger.Debug("audit append: duplicate delivery", slog.String("entry_id", entry.ID))
			return nil
		}
		j.metrics.AuditFailure("worker")
		j.logger.Warn("audit append: write failed", slog.String("entry_id", entry.ID), slog.Any("error", err))
		return err
	}
	return nil
}
