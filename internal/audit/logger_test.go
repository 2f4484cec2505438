package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/observability"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	ctxErr  error
}

func (s *memorySink) Write(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	sink := &memorySink{}
	logger := NewLogger(sink, LoggerConfig{Logger: quietLogger()})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	logger.now = func() time.Time { return fixed }

	logger.RoleCreated(context.Background(), Actor{ID: "u-1", Username: "alice"}, "r-1", "AUDITOR")

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, fixed.Truncate(time.Microsecond), entry.Timestamp)
	assert.Equal(t, ActionRoleCreated, entry.Action)
	assert.Equal(t, TargetRole, entry.TargetType)
	assert.Equal(t, "AUDITOR", entry.TargetName)
	assert.Equal(t, "r-1", entry.Details["roleId"])
	assert.True(t, entry.Success)
}

func TestAppendStripsIPUnlessEnabled(t *testing.T) {
	actor := Actor{ID: "u-1", Username: "alice", IP: "203.0.113.9"}

	sink := &memorySink{}
	NewLogger(sink, LoggerConfig{Logger: quietLogger()}).RoleAssigned(context.Background(), actor, "u-2", "r-1", "USER")
	require.Len(t, sink.entries, 1)
	assert.Empty(t, sink.entries[0].IPAddress)

	sink = &memorySink{}
	NewLogger(sink, LoggerConfig{Logger: quietLogger(), RecordIP: true}).RoleAssigned(context.Background(), actor, "u-2", "r-1", "USER")
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "203.0.113.9", sink.entries[0].IPAddress)
}

func TestAppendSwallowsSinkFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	metrics := observability.NewMetrics()
	logger := NewLogger(sink, LoggerConfig{Logger: quietLogger(), Metrics: metrics, SinkName: "db"})

	assert.NotPanics(t, func() {
		logger.RoleRemoved(context.Background(), Actor{ID: "u-1"}, "u-2", "r-1", "USER")
	})
	assert.Empty(t, sink.entries)
}

func TestAppendIgnoresCallerCancellation(t *testing.T) {
	sink := &memorySink{}
	logger := NewLogger(sink, LoggerConfig{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger.AuthorizationDenied(ctx, Actor{ID: "u-1"}, []string{"roles:write"}, "/roles")

	require.Len(t, sink.entries, 1)
	assert.NoError(t, sink.ctxErr)
	assert.False(t, sink.entries[0].Success)
	assert.Equal(t, ActionAuthorizationDenied, sink.entries[0].Action)
}

func TestBootstrapEntryUsesSystemActor(t *testing.T) {
	sink := &memorySink{}
	NewLogger(sink, LoggerConfig{Logger: quietLogger()}).BootstrapSuperAdmin(context.Background(), "u-1", "root", "r-admin")

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "system", sink.entries[0].ActorID)
	assert.Equal(t, "system", sink.entries[0].ActorUsername)
	assert.Equal(t, ActionBootstrapSuperAdmin, sink.entries[0].Action)
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.RoleCreated(context.Background(), SystemActor, "r-1", "X")
	})
}
