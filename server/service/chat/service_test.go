package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/command"
	"github.com/hrygo/chatkit/plugin/chat/model"
	"github.com/hrygo/chatkit/plugin/chat/variable"
	"github.com/hrygo/chatkit/store"
)

type recordedInvocation struct {
	AgentID string
	Outcome string
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedInvocation
}

func (r *fakeRecorder) RecordInvocation(agentID, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedInvocation{AgentID: agentID, Outcome: outcome})
}

func (r *fakeRecorder) last(t *testing.T) recordedInvocation {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.records)
	return r.records[len(r.records)-1]
}

type testEnv struct {
	service  *Service
	agents   *agent.Registry
	commands *command.Registry
	recorder *fakeRecorder
	store    *store.Store
	mock     *agent.MockAgent
}

func newTestEnv(t *testing.T, driver store.Driver) *testEnv {
	t.Helper()

	agents := agent.NewRegistry()
	mock := &agent.MockAgent{
		MD: agent.Metadata{ID: "test.default", Name: "assistant", IsDefault: true},
		InvokeFunc: func(_ context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("hello"))
			return &agent.Result{}, nil
		},
	}
	require.NoError(t, agents.Register(mock))

	commands := command.NewRegistry()
	recorder := &fakeRecorder{}

	if driver == nil {
		driver = store.NewMemoryDriver()
	}
	st := store.New(driver, "ws-test")

	service := NewService(context.Background(), Config{
		Agents:    agents,
		Commands:  commands,
		Variables: variable.NewRegistry(),
		Store:     st,
		Recorder:  recorder,
	})
	return &testEnv{service: service, agents: agents, commands: commands, recorder: recorder, store: st, mock: mock}
}

func startReadySession(t *testing.T, env *testEnv) *model.Session {
	t.Helper()
	session := env.service.StartSession(context.Background(), agent.LocationPanel)
	require.NoError(t, session.WaitForInitialization(context.Background()))
	return session
}

func send(t *testing.T, env *testEnv, sessionID, message string) *SendReceipt {
	t.Helper()
	receipt, err := env.service.SendRequest(context.Background(), sessionID, message, nil)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	return receipt
}

func waitDone(t *testing.T, receipt *SendReceipt) {
	t.Helper()
	select {
	case <-receipt.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}

func TestSessionInitialization(t *testing.T) {
	t.Run("ReadyWithWelcomeMessage", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.WelcomeFunc = func(context.Context, agent.Location) (*agent.WelcomeMessage, error) {
			return &agent.WelcomeMessage{
				Content:         []string{"Ask me anything."},
				SampleQuestions: []agent.Followup{{Kind: agent.FollowupReply, Message: "What can you do?"}},
			}, nil
		}

		session := startReadySession(t, env)
		assert.Equal(t, model.StateReady, session.State())
		require.NotNil(t, session.WelcomeMessage())
		assert.Equal(t, "Ask me anything.", session.WelcomeMessage().Content[0])
	})

	t.Run("NoDefaultAgentFailsInitialization", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.agents.Deregister("test.default")

		var events []Event
		var mu sync.Mutex
		unsubscribe := env.service.Subscribe(func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})
		defer unsubscribe()

		session := env.service.StartSession(context.Background(), agent.LocationPanel)
		err := session.WaitForInitialization(context.Background())
		assert.ErrorIs(t, err, agent.ErrNoDefaultAgent)
		assert.Equal(t, model.StateDisposed, session.State())

		_, live := env.service.GetSession(session.ID())
		assert.False(t, live)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, events, 1)
		assert.Equal(t, DisposeInitializationFailed, events[0].Reason)
		assert.Equal(t, session.ID(), events[0].SessionID)
	})
}

func TestSendRequest(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi there")
		assert.Equal(t, "test.default", receipt.AgentID)
		waitDone(t, receipt)

		resp := receipt.Request.Response()
		require.NotNil(t, resp)
		assert.True(t, resp.IsComplete())
		assert.Equal(t, "hello", resp.Markdown())
		assert.Equal(t, "success", env.recorder.last(t).Outcome)
	})

	t.Run("WhitespaceOnlyIsNoop", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)

		receipt, err := env.service.SendRequest(context.Background(), session.ID(), "   \n\t", nil)
		require.NoError(t, err)
		assert.Nil(t, receipt)
		assert.Empty(t, session.Requests())
	})

	t.Run("UnknownSession", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.service.SendRequest(context.Background(), "nope", "hi", nil)
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("SecondSendWhileInFlightIsNoop", func(t *testing.T) {
		env := newTestEnv(t, nil)
		release := make(chan struct{})
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, _ agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &agent.Result{}, nil
		}
		session := startReadySession(t, env)

		first := send(t, env, session.ID(), "one")
		second, err := env.service.SendRequest(context.Background(), session.ID(), "two", nil)
		require.NoError(t, err)
		assert.Nil(t, second)

		close(release)
		waitDone(t, first)
		assert.Len(t, session.Requests(), 1)
	})

	t.Run("ProgressStreamsToCaller", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.InvokeFunc = func(_ context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("a"))
			progress(agent.MarkdownPart("b"))
			return &agent.Result{}, nil
		}
		session := startReadySession(t, env)

		var mu sync.Mutex
		var streamed []string
		receipt, err := env.service.SendRequest(context.Background(), session.ID(), "hi", &SendOptions{
			Progress: func(part agent.ProgressPart) {
				mu.Lock()
				streamed = append(streamed, part.Content)
				mu.Unlock()
			},
		})
		require.NoError(t, err)
		waitDone(t, receipt)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"a", "b"}, streamed)
	})

	t.Run("HistoryReachesAgent", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)

		waitDone(t, send(t, env, session.ID(), "first question"))

		var gotHistory []agent.HistoryEntry
		env.mock.InvokeFunc = func(_ context.Context, _ *agent.Request, progress agent.ProgressFunc, history []agent.HistoryEntry) (*agent.Result, error) {
			gotHistory = history
			progress(agent.MarkdownPart("ok"))
			return &agent.Result{}, nil
		}
		waitDone(t, send(t, env, session.ID(), "second question"))

		require.Len(t, gotHistory, 1)
		assert.Equal(t, "first question", gotHistory[0].Prompt)
		assert.Equal(t, "hello", gotHistory[0].Response)
	})

	t.Run("ErrorOutcome", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.InvokeFunc = func(context.Context, *agent.Request, agent.ProgressFunc, []agent.HistoryEntry) (*agent.Result, error) {
			return nil, errors.New("model unavailable")
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		waitDone(t, receipt)

		resp := receipt.Request.Response()
		require.NotNil(t, resp.Result())
		require.NotNil(t, resp.Result().ErrorDetails)
		assert.Equal(t, "model unavailable", resp.Result().ErrorDetails.Message)
		assert.True(t, resp.IsComplete())
		assert.Equal(t, "error", env.recorder.last(t).Outcome)
	})

	t.Run("ErrorWithOutputOutcome", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.InvokeFunc = func(_ context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("partial answer"))
			return nil, errors.New("stream broke")
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		waitDone(t, receipt)

		assert.Equal(t, "errorWithOutput", env.recorder.last(t).Outcome)
		assert.Equal(t, "partial answer", receipt.Request.Response().Markdown())
	})

	t.Run("FilteredOutcome", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.InvokeFunc = func(context.Context, *agent.Request, agent.ProgressFunc, []agent.HistoryEntry) (*agent.Result, error) {
			return &agent.Result{ErrorDetails: &agent.ErrorDetails{Message: "filtered", ResponseIsFiltered: true}}, nil
		}
		session := startReadySession(t, env)

		waitDone(t, send(t, env, session.ID(), "hi"))
		assert.Equal(t, "filtered", env.recorder.last(t).Outcome)
	})

	t.Run("FollowupsFromProvider", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.mock.FollowupsFunc = func(context.Context, *agent.Request, *agent.Result, []agent.HistoryEntry) ([]agent.Followup, error) {
			return []agent.Followup{{Kind: agent.FollowupReply, Message: "tell me more"}}, nil
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		waitDone(t, receipt)

		require.Eventually(t, func() bool {
			return len(receipt.Request.Response().Followups()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "tell me more", receipt.Request.Response().Followups()[0].Message)
	})
}

func TestCancellation(t *testing.T) {
	t.Run("CancelMarksResponseCancelled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		started := make(chan struct{})
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("partial"))
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		<-started
		env.service.CancelCurrentRequestForSession(session.ID())
		waitDone(t, receipt)

		resp := receipt.Request.Response()
		assert.True(t, resp.IsComplete())
		assert.True(t, resp.IsCancelled())
		assert.Equal(t, "partial", resp.Markdown())
		assert.Equal(t, "cancelled", env.recorder.last(t).Outcome)
	})

	t.Run("ProgressAfterCancellationDropped", func(t *testing.T) {
		env := newTestEnv(t, nil)
		cancelled := make(chan struct{})
		started := make(chan struct{})
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("before"))
			close(started)
			<-cancelled
			progress(agent.MarkdownPart("after"))
			return nil, ctx.Err()
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		<-started
		env.service.CancelCurrentRequestForSession(session.ID())
		close(cancelled)
		waitDone(t, receipt)

		assert.Equal(t, "before", receipt.Request.Response().Markdown())
	})

	t.Run("CancelWithNothingPendingIsNoop", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)
		env.service.CancelCurrentRequestForSession(session.ID())
		env.service.CancelCurrentRequestForSession("unknown")
	})

	t.Run("NewRequestAllowedAfterCancel", func(t *testing.T) {
		env := newTestEnv(t, nil)
		started := make(chan struct{}, 1)
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
				progress(agent.MarkdownPart("done"))
				return &agent.Result{}, nil
			}
		}
		session := startReadySession(t, env)

		first := send(t, env, session.ID(), "one")
		<-started
		env.service.CancelCurrentRequestForSession(session.ID())
		waitDone(t, first)

		second := send(t, env, session.ID(), "two")
		waitDone(t, second)
		assert.Equal(t, "done", second.Request.Response().Markdown())
	})
}

func TestResendRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	session := startReadySession(t, env)

	first := send(t, env, session.ID(), "flaky question")
	waitDone(t, first)

	receipt, err := env.service.ResendRequest(context.Background(), first.Request, nil)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	waitDone(t, receipt)

	reqs := session.Requests()
	require.Len(t, reqs, 1)
	assert.NotEqual(t, first.Request.ID(), reqs[0].ID())
	assert.Equal(t, 1, reqs[0].Attempt())
	assert.Equal(t, "flaky question", reqs[0].Message().Text)
}

func TestRemoveAndAdopt(t *testing.T) {
	t.Run("RemoveRequest", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		waitDone(t, receipt)

		require.NoError(t, env.service.RemoveRequest(context.Background(), session.ID(), receipt.Request.ID()))
		assert.Empty(t, session.Requests())

		err := env.service.RemoveRequest(context.Background(), "nope", receipt.Request.ID())
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("RemoveInFlightRequestCancelsFirst", func(t *testing.T) {
		env := newTestEnv(t, nil)
		started := make(chan struct{})
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, _ agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		session := startReadySession(t, env)

		receipt := send(t, env, session.ID(), "hi")
		<-started
		require.NoError(t, env.service.RemoveRequest(context.Background(), session.ID(), receipt.Request.ID()))
		assert.Empty(t, session.Requests())
	})

	t.Run("AdoptRequestMovesPendingWork", func(t *testing.T) {
		env := newTestEnv(t, nil)
		started := make(chan struct{})
		env.mock.InvokeFunc = func(ctx context.Context, _ *agent.Request, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*agent.Result, error) {
			progress(agent.MarkdownPart("moving"))
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		from := startReadySession(t, env)
		to := startReadySession(t, env)

		receipt := send(t, env, from.ID(), "hi")
		<-started
		require.NoError(t, env.service.AdoptRequest(context.Background(), to.ID(), receipt.Request))

		assert.Same(t, to, receipt.Request.Session())
		assert.Empty(t, from.Requests())

		// Cancellation follows the request to its new session.
		env.service.CancelCurrentRequestForSession(to.ID())
		waitDone(t, receipt)
		assert.True(t, receipt.Request.Response().IsCancelled())
	})
}

func TestSlashCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.commands.Register(command.Command{
		Name:        "help",
		Description: "list capabilities",
		Handler: func(_ context.Context, argument string, progress agent.ProgressFunc, _ []agent.HistoryEntry) (*command.Outcome, error) {
			progress(agent.MarkdownPart("help for: " + argument))
			return &command.Outcome{Followups: []agent.Followup{{Kind: agent.FollowupReply, Message: "/help parsing"}}}, nil
		},
	}))
	session := startReadySession(t, env)

	receipt := send(t, env, session.ID(), "/help parsing")
	assert.Equal(t, "help", receipt.Command)
	assert.Empty(t, receipt.AgentID)
	waitDone(t, receipt)

	resp := receipt.Request.Response()
	assert.Equal(t, "help for: parsing", resp.Markdown())
	assert.True(t, resp.IsComplete())
	require.Len(t, resp.Followups(), 1)
}

func TestClearSessionAndHistory(t *testing.T) {
	t.Run("ClearPanelSessionPersists", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)
		waitDone(t, send(t, env, session.ID(), "remember me"))

		var events []Event
		var mu sync.Mutex
		unsubscribe := env.service.Subscribe(func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})
		defer unsubscribe()

		require.NoError(t, env.service.ClearSession(context.Background(), session.ID()))
		assert.Equal(t, model.StateDisposed, session.State())
		_, live := env.service.GetSession(session.ID())
		assert.False(t, live)

		mu.Lock()
		require.Len(t, events, 1)
		assert.Equal(t, DisposeCleared, events[0].Reason)
		mu.Unlock()

		history := env.service.GetHistory(context.Background())
		require.Len(t, history, 1)
		assert.Equal(t, session.ID(), history[0].SessionID)
		assert.Equal(t, "remember me", history[0].Title)
		assert.Equal(t, "hello", history[0].Snippet)
	})

	t.Run("ClearEmptySessionLeavesNoHistory", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)

		require.NoError(t, env.service.ClearSession(context.Background(), session.ID()))
		assert.Empty(t, env.service.GetHistory(context.Background()))
	})

	t.Run("RestoreClearedSession", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)
		waitDone(t, send(t, env, session.ID(), "question one"))
		require.NoError(t, env.service.ClearSession(context.Background(), session.ID()))

		restored, err := env.service.GetOrRestoreSession(context.Background(), session.ID())
		require.NoError(t, err)
		require.NoError(t, restored.WaitForInitialization(context.Background()))

		assert.Equal(t, session.ID(), restored.ID())
		require.Len(t, restored.Requests(), 1)
		assert.Equal(t, "question one", restored.Requests()[0].Message().Text)

		// Now live again, it disappears from history listings.
		assert.Empty(t, env.service.GetHistory(context.Background()))

		_, err = env.service.GetOrRestoreSession(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("RemoveHistoryEntry", func(t *testing.T) {
		env := newTestEnv(t, nil)
		session := startReadySession(t, env)
		waitDone(t, send(t, env, session.ID(), "hi"))
		require.NoError(t, env.service.ClearSession(context.Background(), session.ID()))

		require.NoError(t, env.service.RemoveHistoryEntry(context.Background(), session.ID()))
		assert.Empty(t, env.service.GetHistory(context.Background()))

		_, err := env.service.GetOrRestoreSession(context.Background(), session.ID())
		assert.ErrorIs(t, err, ErrUnknownSession)
	})

	t.Run("ClearAllHistoryEntries", func(t *testing.T) {
		env := newTestEnv(t, nil)
		for i := 0; i < 3; i++ {
			session := startReadySession(t, env)
			waitDone(t, send(t, env, session.ID(), "hi"))
			require.NoError(t, env.service.ClearSession(context.Background(), session.ID()))
		}
		require.Len(t, env.service.GetHistory(context.Background()), 3)

		require.NoError(t, env.service.ClearAllHistoryEntries(context.Background()))
		assert.Empty(t, env.service.GetHistory(context.Background()))
	})

	t.Run("ImportedSessionExcludedFromHistory", func(t *testing.T) {
		env := newTestEnv(t, nil)
		donor := startReadySession(t, env)
		waitDone(t, send(t, env, donor.ID(), "imported content"))
		snap := donor.Snapshot()
		snap.SessionID = "imported-1"

		imported, err := env.service.LoadSessionFromContent(context.Background(), snap)
		require.NoError(t, err)
		require.NoError(t, imported.WaitForInitialization(context.Background()))
		assert.True(t, imported.IsImported())

		require.NoError(t, env.service.ClearSession(context.Background(), imported.ID()))
		for _, entry := range env.service.GetHistory(context.Background()) {
			assert.NotEqual(t, "imported-1", entry.SessionID)
		}
	})
}

func TestPersistenceAcrossRestart(t *testing.T) {
	driver := store.NewMemoryDriver()

	env := newTestEnv(t, driver)
	session := startReadySession(t, env)
	waitDone(t, send(t, env, session.ID(), "survive the restart"))
	require.NoError(t, env.service.SaveState(context.Background()))

	// A fresh service over the same driver sees the session.
	env2 := newTestEnv(t, driver)
	history := env2.service.GetHistory(context.Background())
	require.Len(t, history, 1)
	assert.Equal(t, "survive the restart", history[0].Title)

	restored, err := env2.service.GetOrRestoreSession(context.Background(), session.ID())
	require.NoError(t, err)
	require.NoError(t, restored.WaitForInitialization(context.Background()))
	require.Len(t, restored.Requests(), 1)
	assert.Equal(t, "hello", restored.Requests()[0].Response().Markdown())
}

func TestTransferSession(t *testing.T) {
	t.Run("ClaimedByTargetWorkspace", func(t *testing.T) {
		driver := store.NewMemoryDriver()
		env := newTestEnv(t, driver)
		session := startReadySession(t, env)
		waitDone(t, send(t, env, session.ID(), "take this with you"))

		require.NoError(t, env.service.TransferSession(context.Background(), session.ID(), "ws-other", "half-typed draft"))

		other := NewService(context.Background(), Config{
			Agents:    env.agents,
			Commands:  env.commands,
			Variables: variable.NewRegistry(),
			Store:     store.New(driver, "ws-other"),
		})

		id, input, ok := other.TransferredSession()
		require.True(t, ok)
		assert.Equal(t, session.ID(), id)
		assert.Equal(t, "half-typed draft", input)

		restored, err := other.GetOrRestoreSession(context.Background(), id)
		require.NoError(t, err)
		require.NoError(t, restored.WaitForInitialization(context.Background()))
		require.Len(t, restored.Requests(), 1)
		assert.Equal(t, "take this with you", restored.Requests()[0].Message().Text)
	})

	t.Run("UnknownSessionRejected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		err := env.service.TransferSession(context.Background(), "nope", "ws-other", "")
		assert.ErrorIs(t, err, ErrUnknownSession)
	})
}

func TestAddCompleteRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	session := startReadySession(t, env)

	req, err := env.service.AddCompleteRequest(context.Background(), session.ID(), "replayed question", 0, &CompletedResponse{
		Markdown: "replayed answer",
		Result:   &agent.Result{Timings: &agent.Timings{TotalElapsed: 7}},
	})
	require.NoError(t, err)

	resp := req.Response()
	require.NotNil(t, resp)
	assert.True(t, resp.IsComplete())
	assert.Equal(t, "replayed answer", resp.Markdown())
	assert.Equal(t, int64(7), resp.Result().Timings.TotalElapsed)

	// No agent ran for it.
	env.recorder.mu.Lock()
	assert.Empty(t, env.recorder.records)
	env.recorder.mu.Unlock()

	_, err = env.service.AddCompleteRequest(context.Background(), "missing", "q", 0, nil)
	assert.ErrorIs(t, err, ErrUnknownSession)
}
