package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/authcore/jobs"
)

// JobsCLI wraps read-only helpers over the audit queue.
type JobsCLI struct {
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers against the given Redis connection.
func NewJobsCLI(opt asynq.RedisConnOpt) *JobsCLI {
	return &JobsCLI{inspector: asynq.NewInspector(opt)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the counters of one queue.
func (c *JobsCLI) InspectQueue(queue string) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(queue)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: queue}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
		stats.Archived = int(info.Archived)
	}
	return stats, nil
}

// ListRetry returns audit writes waiting for another attempt.
func (c *JobsCLI) ListRetry(queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListRetryTasks(queue, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the background audit queue",
	}

	var retries int
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show audit queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, false, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)
			if rt.Redis == nil {
				return errors.New("jobs inspect requires redis")
			}

			jc := NewJobsCLI(rt.RedisOpt())
			defer func() { _ = jc.Close() }()

			stats, err := jc.InspectQueue(jobs.QueueAudit)
			if err != nil {
				return err
			}
			var pending []*asynq.TaskInfo
			if retries > 0 {
				if pending, err = jc.ListRetry(jobs.QueueAudit, retries); err != nil {
					return err
				}
			}
			result := map[string]any{"stats": stats, "retry": taskSummaries(pending)}
			return opts.render(cmd.OutOrStdout(), result, func() error {
				if err := printTable(cmd.OutOrStdout(),
					[]string{"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED"},
					[][]string{{stats.Queue, strconv.Itoa(stats.Pending), strconv.Itoa(stats.Active),
						strconv.Itoa(stats.Scheduled), strconv.Itoa(stats.Retry), strconv.Itoa(stats.Archived)}},
				); err != nil {
					return err
				}
				for _, task := range taskSummaries(pending) {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "retry %s (%d/%d): %s\n", task.ID, task.Retried, task.MaxRetry, task.LastErr); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	inspect.Flags().IntVar(&retries, "retries", 0, "Also list up to N tasks awaiting retry")
	cmd.AddCommand(inspect)
	return cmd
}

type taskSummary struct {
	ID       string `json:"id"`
	Retried  int    `json:"retried"`
	MaxRetry int    `json:"max_retry"`
	LastErr  string `json:"last_error,omitempty"`
}

func taskSummaries(tasks []*asynq.TaskInfo) []taskSummary {
	out := make([]taskSummary, 0, len(tasks))
	for _, task := range tasks {
		if task == nil {
			continue
		}
		out = append(out, taskSummary{ID: task.ID, Retried: task.Retried, MaxRetry: task.MaxRetry, LastErr: task.LastErr})
	}
	return out
}
