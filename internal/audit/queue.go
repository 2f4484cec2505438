package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// Konstanta antrean untuk sink berbasis asynq.
const (
	TaskAppend = "audit:append"
	QueueName  = "audit"
)

const defaultMaxRetry = 10

// Enqueuer adalah subset asynq.Client yang dipakai QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink meneruskan entri ke worker melalui asynq. Worker menulisnya ke
// Repository.
type QueueSink struct {
	client   Enqueuer
	queue    string
	maxRetry int
}

// NewQueueSink membuat sink antrean. queue kosong berarti QueueName.
func NewQueueSink(client Enqueuer, queue string) *QueueSink {
	if queue == "" {
		queue = QueueName
	}
	return &QueueSink{client: client, queue: queue, maxRetry: defaultMaxRetry}
}

// Write mengantrekan entri. ID entri dipakai sebagai task ID sehingga
// pengiriman ulang tidak menggandakan entri.
func (s *QueueSink) Write(ctx context.Context, entry Entry) error {
	task, err := NewAppendTask(entry)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(s.queue), asynq.MaxRetry(s.maxRetry)}
	if entry.ID != "" {
		opts = append(opts, asynq.TaskID(entry.ID), asynq.Retention(24*time.Hour))
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("audit: enqueue %s: %w", entry.ID, err)
	}
	return nil
}

// NewAppendTask membungkus entri sebagai task asynq.
func NewAppendTask(entry Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: encode task: %w", err)
	}
	return asynq.NewTask(TaskAppend, payload), nil
}

// DecodeAppendTask membaca entri dari payload task.
func DecodeAppendTask(payload []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("audit: decode task: %w: %v", shared.ErrValidation, err)
	}
	fields := map[string]string{}
	if entry.ID == "" {
		fields["id"] = "required"
	}
	if entry.Timestamp.IsZero() {
		fields["timestamp"] = "required"
	}
	if !entry.Action.Valid() {
		fields["action"] = "unknown"
	}
	if !entry.TargetType.Valid() {
		fields["target_type"] = "unknown"
	}
	if len(fields) > 0 {
		return Entry{}, &ValidationError{Fields: fields}
	}
	return entry, nil
}
