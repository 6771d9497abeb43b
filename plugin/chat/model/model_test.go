package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/parser"
)

func textMessage(sessionID, text string) *parser.ParsedRequest {
	return parser.NewParser(nil, nil, nil).Parse(sessionID, text, agent.LocationPanel, nil)
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("NewSessionStartsUninitialized", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		assert.NotEmpty(t, s.ID())
		assert.Equal(t, StateUninitialized, s.State())
		assert.Equal(t, agent.LocationPanel, s.InitialLocation())
		assert.False(t, s.IsImported())
	})

	t.Run("InitializeUnblocksWaiters", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		s.StartInitialize()
		assert.Equal(t, StateInitializing, s.State())

		done := make(chan error, 1)
		go func() {
			done <- s.WaitForInitialization(context.Background())
		}()

		welcome := &agent.WelcomeMessage{Content: []string{"hello"}}
		s.Initialize(welcome)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiter was not unblocked")
		}
		assert.Equal(t, StateReady, s.State())
		assert.Equal(t, welcome, s.WelcomeMessage())
	})

	t.Run("InitializeTwiceKeepsFirstWelcome", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		first := &agent.WelcomeMessage{Content: []string{"first"}}
		s.Initialize(first)
		s.Initialize(&agent.WelcomeMessage{Content: []string{"second"}})
		assert.Equal(t, first, s.WelcomeMessage())
		assert.Equal(t, StateReady, s.State())
	})

	t.Run("InitializationFailure", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		s.StartInitialize()
		initErr := errors.New("no default agent")
		s.SetInitializationError(initErr)

		assert.Equal(t, StateInitializationFailed, s.State())
		err := s.WaitForInitialization(context.Background())
		assert.ErrorIs(t, err, initErr)

		// A failed session cannot recover into Ready.
		s.Initialize(nil)
		assert.Equal(t, StateInitializationFailed, s.State())
	})

	t.Run("WaitHonorsContext", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.WaitForInitialization(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("DisposeBeforeInitialization", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		s.Dispose()
		assert.Equal(t, StateDisposed, s.State())
		err := s.WaitForInitialization(context.Background())
		assert.ErrorIs(t, err, ErrSessionDisposed)

		// Dispose is idempotent and terminal.
		s.Dispose()
		s.Initialize(nil)
		assert.Equal(t, StateDisposed, s.State())
	})
}

func TestRequests(t *testing.T) {
	t.Run("AddAndGet", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hello"), nil, 0, "helper", "")

		assert.NotEmpty(t, req.ID())
		assert.Same(t, s, req.Session())
		assert.Equal(t, "helper", req.AgentID())
		assert.Equal(t, 0, req.Attempt())
		assert.Nil(t, req.Response())

		got, ok := s.GetRequest(req.ID())
		require.True(t, ok)
		assert.Same(t, req, got)

		_, ok = s.GetRequest("missing")
		assert.False(t, ok)
	})

	t.Run("OrderPreserved", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		first := s.AddRequest(textMessage(s.ID(), "one"), nil, 0, "a", "")
		second := s.AddRequest(textMessage(s.ID(), "two"), nil, 0, "a", "")

		reqs := s.Requests()
		require.Len(t, reqs, 2)
		assert.Same(t, first, reqs[0])
		assert.Same(t, second, reqs[1])
	})

	t.Run("SetVariablesAfterResolution", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "#file"), nil, 0, "a", "")
		assert.Empty(t, req.Variables())

		s.SetRequestVariables(req, []agent.VariableEntry{{Name: "file", Value: "main.go"}})
		vars := req.Variables()
		require.Len(t, vars, 1)
		assert.Equal(t, "main.go", vars[0].Value)
	})

	t.Run("RemoveRequest", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hello"), nil, 0, "a", "")

		require.NoError(t, s.RemoveRequest(req.ID(), RemovalResend))
		assert.Empty(t, s.Requests())

		err := s.RemoveRequest(req.ID(), RemovalResend)
		assert.ErrorIs(t, err, ErrRequestNotFound)
	})
}

func TestResponseStreaming(t *testing.T) {
	t.Run("ProgressCreatesResponse", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		s.AcceptResponseProgress(req, agent.MarkdownPart("Hello"))
		s.AcceptResponseProgress(req, agent.MarkdownPart(", world"))

		resp := req.Response()
		require.NotNil(t, resp)
		assert.False(t, resp.IsComplete())
		assert.Len(t, resp.Parts(), 2)
		assert.Equal(t, "Hello, world", resp.Markdown())
	})

	t.Run("CompletionIsOneShot", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		s.AcceptResponseProgress(req, agent.MarkdownPart("partial"))
		s.CompleteResponse(req)
		require.True(t, req.Response().IsComplete())

		// A second completion changes nothing.
		s.CompleteResponse(req)
		assert.True(t, req.Response().IsComplete())
		assert.Len(t, req.Response().Parts(), 1)
	})

	t.Run("ProgressAfterCompletionIgnored", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		s.AcceptResponseProgress(req, agent.MarkdownPart("kept"))
		s.CompleteResponse(req)
		s.AcceptResponseProgress(req, agent.MarkdownPart("dropped"))

		assert.Equal(t, "kept", req.Response().Markdown())
	})

	t.Run("SetResponseRecordsResult", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		result := &agent.Result{Timings: &agent.Timings{TotalElapsed: 42}}
		s.SetResponse(req, result)
		s.CompleteResponse(req)

		assert.Equal(t, result, req.Response().Result())
	})

	t.Run("CancelKeepsPartialProgress", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		s.AcceptResponseProgress(req, agent.MarkdownPart("partial"))
		s.CancelRequest(req)

		resp := req.Response()
		assert.True(t, resp.IsComplete())
		assert.True(t, resp.IsCancelled())
		assert.Equal(t, "partial", resp.Markdown())
	})

	t.Run("FollowupsEitherSideOfCompletion", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		s.CompleteResponse(req)
		s.SetFollowups(req, []agent.Followup{{Kind: agent.FollowupReply, Message: "and then?"}})

		followups := req.Response().Followups()
		require.Len(t, followups, 1)
		assert.Equal(t, "and then?", followups[0].Message)
	})

	t.Run("ConcurrentProgress", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.AcceptResponseProgress(req, agent.MarkdownPart("x"))
			}()
		}
		wg.Wait()
		s.CompleteResponse(req)

		assert.Len(t, req.Response().Parts(), 50)
	})
}

func TestAdoptRequest(t *testing.T) {
	t.Run("MovesRequestBetweenSessions", func(t *testing.T) {
		from := NewSession(agent.LocationPanel)
		to := NewSession(agent.LocationPanel)

		req := from.AddRequest(textMessage(from.ID(), "hi"), nil, 0, "a", "")
		s := req.Session()
		s.AcceptResponseProgress(req, agent.MarkdownPart("partial"))

		to.AdoptRequest(req)

		assert.Same(t, to, req.Session())
		assert.Empty(t, from.Requests())
		require.Len(t, to.Requests(), 1)
		assert.Equal(t, "partial", req.Response().Markdown())
	})

	t.Run("AdoptingOwnRequestIsNoop", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		req := s.AddRequest(textMessage(s.ID(), "hi"), nil, 0, "a", "")
		s.AdoptRequest(req)
		assert.Len(t, s.Requests(), 1)
	})
}

func TestTitleAndSnippet(t *testing.T) {
	t.Run("EmptySessionDefaultTitle", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		assert.Equal(t, DefaultTitle, s.Title())
	})

	t.Run("TitleStripsMarkdown", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		s.AddRequest(textMessage(s.ID(), "# How do I **sort** a slice?"), nil, 0, "a", "")
		assert.Equal(t, "How do I sort a slice?", s.Title())
	})

	t.Run("TitleTruncated", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		long := "This question keeps going well past the fifty rune boundary for titles"
		s.AddRequest(textMessage(s.ID(), long), nil, 0, "a", "")

		title := s.Title()
		assert.LessOrEqual(t, len([]rune(title)), maxTitleLength+1)
		assert.Contains(t, title, "This question")
	})

	t.Run("SnippetFromLatestCompletedResponse", func(t *testing.T) {
		s := NewSession(agent.LocationPanel)
		first := s.AddRequest(textMessage(s.ID(), "one"), nil, 0, "a", "")
		s.AcceptResponseProgress(first, agent.MarkdownPart("Use `sort.Slice`."))
		s.CompleteResponse(first)

		second := s.AddRequest(textMessage(s.ID(), "two"), nil, 0, "a", "")
		s.AcceptResponseProgress(second, agent.MarkdownPart("still streaming"))

		assert.Equal(t, "Use sort.Slice.", s.Snippet())
	})
}
