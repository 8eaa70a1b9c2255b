package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

func newConsoleLogger(buf *bytes.Buffer, level slog.Level, pkgLevels map[string]slog.Level, name string) *slog.Logger {
	//nolint:exhaustruct
	handler := &logging.ConsoleHandler{Output: buf, Level: level, PkgLevels: pkgLevels}

	return slog.New(logging.NewTracingHandler(handler)).With(logging.KeyLogger, name)
}

func TestConsoleHandler_PackageLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		logger    string
		pkgLevels map[string]slog.Level
		wantDebug bool
	}{
		{name: "global level applies without override", logger: "svc.market", wantDebug: false},
		{
			name:      "exact override enables debug",
			logger:    "svc.market",
			pkgLevels: map[string]slog.Level{"svc.market": slog.LevelDebug},
			wantDebug: true,
		},
		{
			name:      "parent override enables debug",
			logger:    "svc.market.http",
			pkgLevels: map[string]slog.Level{"svc": slog.LevelDebug},
			wantDebug: true,
		},
		{
			name:      "sibling override does not apply",
			logger:    "svc.auth",
			pkgLevels: map[string]slog.Level{"svc.market": slog.LevelDebug},
			wantDebug: false,
		},
		{
			name:      "more specific override wins",
			logger:    "svc.market.repo",
			pkgLevels: map[string]slog.Level{"svc": slog.LevelDebug, "svc.market.repo": slog.LevelError},
			wantDebug: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			log := newConsoleLogger(&buf, slog.LevelInfo, tt.pkgLevels, tt.logger)
			log.Debug("debug message")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug message")))
		})
	}
}

func TestTracingHandler_AddsRequestAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := newConsoleLogger(&buf, slog.LevelDebug, nil, "test")

	userID := uuid.New()
	ctx := context_.WithTraceID(context.Background(), "trace-123")
	ctx = context_.WithPrincipal(ctx, context_.Principal{UserID: userID, Username: "alice"})

	log.InfoContext(ctx, "hello", "item", "chair")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "trace.id=")
	assert.Contains(t, out, "trace-123")
	assert.Contains(t, out, userID.String())
	assert.Contains(t, out, "item=")
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	log := logging.NewNopLogger()
	log.Error("nothing happens")
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}
