package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatkit/plugin/chat/agent"
)

func noopHandler(context.Context, string, agent.ProgressFunc, []agent.HistoryEntry) (*Outcome, error) {
	return &Outcome{}, nil
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Command{Name: "help", Handler: noopHandler}))

	assert.True(t, r.HasCommand("help"))
	assert.False(t, r.HasCommand("missing"))
	assert.Len(t, r.Commands(), 1)

	t.Run("DuplicateRejected", func(t *testing.T) {
		err := r.Register(Command{Name: "help", Handler: noopHandler})
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("EmptyNameRejected", func(t *testing.T) {
		assert.Error(t, r.Register(Command{Handler: noopHandler}))
	})

	t.Run("NilHandlerRejected", func(t *testing.T) {
		assert.Error(t, r.Register(Command{Name: "broken"}))
	})
}

func TestExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Command{
		Name: "echo",
		Handler: func(_ context.Context, argument string, progress agent.ProgressFunc, history []agent.HistoryEntry) (*Outcome, error) {
			progress(agent.MarkdownPart(argument))
			return &Outcome{Followups: []agent.Followup{{Kind: agent.FollowupReply, Message: "again"}}}, nil
		},
	}))
	require.NoError(t, r.Register(Command{
		Name: "fail",
		Handler: func(context.Context, string, agent.ProgressFunc, []agent.HistoryEntry) (*Outcome, error) {
			return nil, errors.New("boom")
		},
	}))

	t.Run("RunsHandler", func(t *testing.T) {
		var got string
		outcome, err := r.Execute(context.Background(), "echo", "hello", func(p agent.ProgressPart) {
			got = p.Content
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
		require.Len(t, outcome.Followups, 1)
	})

	t.Run("HandlerErrorPropagates", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "fail", "", func(agent.ProgressPart) {}, nil)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "missing", "", func(agent.ProgressPart) {}, nil)
		assert.ErrorContains(t, err, "unknown command")
	})
}
