package context_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	context_ "github.com/mkrupp/joynest/internal/infra/context"
)

func TestPrincipalFromContext(t *testing.T) {
	t.Parallel()

	_, ok := context_.PrincipalFromContext(context.Background())
	assert.False(t, ok, "anonymous context")

	_, ok = context_.PrincipalFromContext(context_.WithPrincipal(context.Background(), context_.Principal{}))
	assert.False(t, ok, "nil user id is anonymous")

	want := context_.Principal{UserID: uuid.New(), Username: "alice", SessionID: uuid.New()}
	ctx := context_.WithPrincipal(context.Background(), want)

	got, ok := context_.PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	id, ok := context_.UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, want.UserID, id)
}

func TestTraceIDFromContext(t *testing.T) {
	t.Parallel()

	_, ok := context_.TraceIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := context_.TraceIDFromContext(context_.WithTraceID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
