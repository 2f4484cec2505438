package audit

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/authcore/internal/observability"
)

const defaultAppendTimeout = 3 * time.Second

// Sink menyimpan entri audit yang sudah dilengkapi.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// LoggerConfig mengatur Logger.
type LoggerConfig struct {
	// SinkName labels failure metrics, e.g. "db" or "queue".
	SinkName string
	// RecordIP keeps the client address on entries.
	RecordIP bool
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Logger menulis entri audit secara best-effort. Kegagalan sink dicatat ke log
// dan metrik, tidak pernah dikembalikan ke pemanggil. Logger nil adalah no-op.
type Logger struct {
	sink     Sink
	sinkName string
	recordIP bool
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewLogger membuat Logger di atas sink.
func NewLogger(sink Sink, cfg LoggerConfig) *Logger {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAppendTimeout
	}
	if cfg.SinkName == "" {
		cfg.SinkName = "db"
	}
	return &Logger{
		sink:     sink,
		sinkName: cfg.SinkName,
		recordIP: cfg.RecordIP,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// Append melengkapi id dan timestamp lalu menyerahkan entri ke sink. The write
// is detached from ctx cancellation.
func (l *Logger) Append(ctx context.Context, entry Entry) {
	if l == nil || l.sink == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if !l.recordIP {
		entry.IPAddress = ""
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if err := l.sink.Write(writeCtx, entry); err != nil {
		l.metrics.AuditFailure(l.sinkName)
		l.logger.Error("audit: append failed",
			slog.String("sink", l.sinkName),
			slog.String("action", string(entry.Action)),
			slog.String("entry_id", entry.ID),
			slog.Any("error", err))
	}
}

// RoleCreated mencatat pembuatan role.
func (l *Logger) RoleCreated(ctx context.Context, actor Actor, roleID, roleName string) {
	l.Append(ctx, Entry{
		Action:        ActionRoleCreated,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		TargetType:    TargetRole,
		TargetID:      roleID,
		TargetName:    roleName,
		Details:       map[string]any{"roleId": roleID, "roleName": roleName},
		IPAddress:     actor.IP,
		Success:       true,
	})
}

// RoleAssigned mencatat pengikatan role ke pengguna.
func (l *Logger) RoleAssigned(ctx context.Context, actor Actor, userID, roleID, roleName string) {
	l.Append(ctx, Entry{
		Action:        ActionRoleAssigned,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		TargetType:    TargetUser,
		TargetID:      userID,
		Details:       map[string]any{"roleId": roleID, "roleName": roleName},
		IPAddress:     actor.IP,
		Success:       true,
	})
}

// RoleRemoved mencatat pelepasan role dari pengguna.
func (l *Logger) RoleRemoved(ctx context.Context, actor Actor, userID, roleID, roleName string) {
	l.Append(ctx, Entry{
		Action:        ActionRoleRemoved,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		TargetType:    TargetUser,
		TargetID:      userID,
		Details:       map[string]any{"roleId": roleID, "roleName": roleName},
		IPAddress:     actor.IP,
		Success:       true,
	})
}

// BootstrapSuperAdmin mencatat pemberian SUPER_ADMIN saat startup.
func (l *Logger) BootstrapSuperAdmin(ctx context.Context, userID, username, roleID string) {
	l.Append(ctx, Entry{
		Action:        ActionBootstrapSuperAdmin,
		ActorID:       SystemActor.ID,
		ActorUsername: SystemActor.Username,
		TargetType:    TargetUser,
		TargetID:      userID,
		TargetName:    username,
		Details:       map[string]any{"roleId": roleID, "roleName": "SUPER_ADMIN"},
		Success:       true,
	})
}

// AuthorizationDenied mencatat penolakan oleh middleware.
func (l *Logger) AuthorizationDenied(ctx context.Context, actor Actor, required []string, route string) {
	l.Append(ctx, Entry{
		Action:        ActionAuthorizationDenied,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		TargetType:    TargetPermission,
		Details:       map[string]any{"required": slices.Clone(required), "route": route},
		IPAddress:     actor.IP,
		Success:       false,
	})
}
