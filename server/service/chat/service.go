package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/command"
	"github.com/hrygo/chatkit/plugin/chat/model"
	"github.com/hrygo/chatkit/plugin/chat/parser"
	"github.com/hrygo/chatkit/plugin/chat/variable"
	"github.com/hrygo/chatkit/internal/observability"
	"github.com/hrygo/chatkit/store"
)

// Config wires the orchestrator's collaborators. Store, Recorder and
// Activator are optional.
type Config struct {
	Agents    *agent.Registry
	Commands  *command.Registry
	Variables *variable.Registry
	Activator agent.Activator

	// Store persists history and transfers. Nil disables persistence.
	Store    *store.Store
	Recorder InvocationRecorder
	Logger   *slog.Logger
}

// pendingRequest tracks the single in-flight request of one session.
type pendingRequest struct {
	requestID string
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool
}

// Service implements Orchestrator.
type Service struct {
	agents    *agent.Registry
	commands  *command.Registry
	variables *variable.Registry
	parser    *parser.Parser
	activator agent.Activator
	recorder  InvocationRecorder
	logger    *slog.Logger

	history   *store.HistoryStore
	transfers *store.TransferStore

	events *eventBus

	mu sync.Mutex
	// sessions holds the live sessions.
	sessions map[string]*model.Session
	// pending holds the in-flight request per session, at most one.
	pending map[string]*pendingRequest
	// followupCancels stops followup computation per session.
	followupCancels map[string]context.CancelFunc
	// persisted holds snapshots of sessions that are not live.
	persisted map[string]*model.Snapshot

	// transferredSessionID marks the single session picked up from a
	// workspace transfer at startup, along with its pending input.
	transferredSessionID    string
	transferredInputPending string
}

// NewService builds the orchestrator, loads persisted history and
// claims any session transferred to this workspace.
func NewService(ctx context.Context, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	activator := cfg.Activator
	if activator == nil {
		activator = agent.NoopActivator{}
	}

	s := &Service{
		agents:          cfg.Agents,
		commands:        cfg.Commands,
		variables:       cfg.Variables,
		parser:          parser.NewParser(cfg.Agents, cfg.Commands, cfg.Variables),
		activator:       activator,
		recorder:        cfg.Recorder,
		logger:          logger,
		events:          newEventBus(),
		sessions:        make(map[string]*model.Session),
		pending:         make(map[string]*pendingRequest),
		followupCancels: make(map[string]context.CancelFunc),
		persisted:       make(map[string]*model.Snapshot),
	}

	if cfg.Store != nil {
		s.history = store.NewHistoryStore(cfg.Store)
		s.transfers = store.NewTransferStore(cfg.Store)

		for _, snap := range s.history.Load(ctx) {
			s.persisted[snap.SessionID] = snap
		}

		entry, ok, err := s.transfers.Take(ctx, cfg.Store.Workspace())
		if err != nil {
			logger.Error("failed to claim transferred session", "error", err)
		} else if ok && entry.Chat != nil {
			s.persisted[entry.Chat.SessionID] = entry.Chat
			s.transferredSessionID = entry.Chat.SessionID
			s.transferredInputPending = entry.InputValue
			logger.Info("claimed transferred session", "session_id", entry.Chat.SessionID)
		}
	}

	return s
}

// Subscribe registers a listener for session dispose events and
// returns its unsubscribe func.
func (s *Service) Subscribe(fn func(Event)) func() {
	return s.events.subscribe(fn)
}

// TransferredSession returns the session ID and input draft claimed
// from a workspace transfer at startup, if any.
func (s *Service) TransferredSession() (sessionID, inputValue string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferredSessionID, s.transferredInputPending, s.transferredSessionID != ""
}

// StartSession creates a session and initializes it in the background.
func (s *Service) StartSession(_ context.Context, location agent.Location) *model.Session {
	session := model.NewSession(location)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	go s.initializeSession(session)
	return session
}

// initializeSession resolves the default agent for the session's
// location and collects the welcome message. Failure disposes the
// session and emits an initializationFailed event.
func (s *Service) initializeSession(session *model.Session) {
	session.StartInitialize()
	ctx := context.Background()

	if err := s.activator.WhenReady(ctx); err != nil {
		s.failInitialization(session, err)
		return
	}

	defaultAgent, ok := s.agents.DefaultAgent(session.InitialLocation())
	if !ok {
		// Give contributors one activation round before giving up.
		if err := s.activator.ActivateByEvent(ctx, agent.ActivationEvent("")); err == nil {
			defaultAgent, ok = s.agents.DefaultAgent(session.InitialLocation())
		}
	}
	if !ok {
		s.failInitialization(session, agent.ErrNoDefaultAgent)
		return
	}

	var welcome *agent.WelcomeMessage
	if provider, isProvider := defaultAgent.(agent.WelcomeProvider); isProvider {
		var err error
		welcome, err = provider.ProvideWelcomeMessage(ctx, session.InitialLocation())
		if err != nil {
			s.logger.Warn("welcome message unavailable",
				"session_id", session.ID(), "error", err)
		}
	}

	session.Initialize(welcome)
	s.logger.Debug("session initialized",
		"session_id", session.ID(), "location", string(session.InitialLocation()))
}

func (s *Service) failInitialization(session *model.Session, err error) {
	s.logger.Error("session initialization failed",
		"session_id", session.ID(), "error", err)

	session.SetInitializationError(err)

	s.mu.Lock()
	delete(s.sessions, session.ID())
	s.mu.Unlock()

	session.Dispose()
	s.events.emit(Event{SessionID: session.ID(), Reason: DisposeInitializationFailed})
}

// GetSession returns the live session with the given ID.
func (s *Service) GetSession(sessionID string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// GetOrRestoreSession returns the live session, or revives it from a
// persisted snapshot.
func (s *Service) GetOrRestoreSession(_ context.Context, sessionID string) (*model.Session, error) {
	s.mu.Lock()
	if session, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return session, nil
	}

	snap, ok := s.persisted[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownSession
	}
	delete(s.persisted, sessionID)
	if s.transferredSessionID == sessionID {
		s.transferredSessionID = ""
	}

	session := model.FromSnapshot(snap)
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	go s.initializeSession(session)
	return session, nil
}

// LoadSessionFromContent revives a session from external serialized
// content, e.g. an exported chat. The result is marked imported and
// never shows up in history.
func (s *Service) LoadSessionFromContent(_ context.Context, snapshot *model.Snapshot) (*model.Session, error) {
	if snapshot == nil || snapshot.SessionID == "" {
		return nil, errors.New("invalid session content")
	}

	imported := *snapshot
	imported.IsImported = true
	session := model.FromSnapshot(&imported)

	s.mu.Lock()
	if existing, ok := s.sessions[session.ID()]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	go s.initializeSession(session)
	return session, nil
}

// SendRequest accepts one message for a session. A whitespace-only
// message, or a message sent while another request is in flight,
// yields a nil receipt and no error.
func (s *Service) SendRequest(ctx context.Context, sessionID, message string, opts *SendOptions) (*SendReceipt, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil
	}
	if opts == nil {
		opts = &SendOptions{}
	}

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownSession
	}
	if _, inFlight := s.pending[sessionID]; inFlight {
		s.mu.Unlock()
		s.logger.Warn("request ignored, session already has one in flight",
			"session_id", sessionID)
		return nil, nil
	}

	// A new turn obsoletes any followup computation still running.
	s.cancelFollowupsLocked(sessionID)
	s.mu.Unlock()

	if err := session.WaitForInitialization(ctx); err != nil {
		return nil, err
	}

	parsed := s.parser.Parse(sessionID, message, session.InitialLocation(), s.parseContext(session, opts))

	agentID, cmd, handler := s.resolveTarget(session, parsed)
	req := session.AddRequest(parsed, nil, opts.Attempt, agentID, cmd)

	invCtx, cancel := context.WithCancel(context.Background())
	pend := &pendingRequest{
		requestID: req.ID(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if _, raced := s.pending[sessionID]; raced {
		s.mu.Unlock()
		cancel()
		_ = session.RemoveRequest(req.ID(), model.RemovalResend)
		s.logger.Warn("request ignored, session already has one in flight",
			"session_id", sessionID)
		return nil, nil
	}
	s.pending[sessionID] = pend
	s.mu.Unlock()

	go s.runRequest(invCtx, session, req, pend, handler, opts)

	return &SendReceipt{Request: req, AgentID: agentID, Command: cmd, Done: pend.done}, nil
}

// target is how one request gets handled: through a standalone command
// handler, or through agent dispatch.
type target struct {
	commandName string
	agentTarget agent.Agent
}

func (s *Service) parseContext(session *model.Session, opts *SendOptions) *parser.Context {
	if opts.AgentName == "" {
		return nil
	}
	selected, ok := s.agents.AgentByName(opts.AgentName, session.InitialLocation())
	if !ok {
		return nil
	}
	return &parser.Context{SelectedAgent: selected}
}

// resolveTarget decides what handles the parsed message. An explicit
// agent reference wins; a standalone slash command takes the command
// path; everything else goes to the location's default agent.
func (s *Service) resolveTarget(session *model.Session, parsed *parser.ParsedRequest) (agentID, cmd string, tgt target) {
	if slash, ok := parsed.SlashCommandPart(); ok {
		return "", slash.Command, target{commandName: slash.Command}
	}

	var handling agent.Agent
	if ref, ok := parsed.AgentPart(); ok {
		if a, found := s.agents.Agent(ref.AgentID); found {
			handling = a
		}
	}
	if handling == nil {
		handling, _ = s.agents.DefaultAgent(session.InitialLocation())
	}
	if handling == nil {
		return "", "", target{}
	}

	if sub, ok := parsed.SubcommandPart(); ok {
		cmd = sub.Command
	}
	return handling.Metadata().ID, cmd, target{agentTarget: handling}
}

// runRequest drives one invocation to its terminal state. The response
// is always completed, whatever path the invocation takes.
func (s *Service) runRequest(ctx context.Context, session *model.Session, req *model.Request, pend *pendingRequest, tgt target, opts *SendOptions) {
	agentID := req.AgentID()
	if tgt.commandName != "" {
		agentID = "command:" + tgt.commandName
	}
	reqCtx := observability.NewRequestContext(s.logger, session.ID(), req.ID(), agentID)

	// Adoption can re-key the pending entry, so clean up by identity.
	defer func() {
		s.mu.Lock()
		for id, p := range s.pending {
			if p == pend {
				delete(s.pending, id)
			}
		}
		s.mu.Unlock()
		close(pend.done)
	}()

	// Progress after cancellation is dropped so a stale handler cannot
	// keep mutating the response.
	var firstProgress atomic.Int64
	progress := func(part agent.ProgressPart) {
		if ctx.Err() != nil {
			reqCtx.Debug("progress after cancellation dropped")
			return
		}
		firstProgress.CompareAndSwap(0, max(reqCtx.DurationMs(), 1))
		session.AcceptResponseProgress(req, part)
		if opts.Progress != nil {
			opts.Progress(part)
		}
	}

	history := s.buildHistory(session, req)

	var (
		result    *agent.Result
		invokeErr error
		followups []agent.Followup
		provider  agent.FollowupProvider
		areq      *agent.Request
	)

	if tgt.commandName != "" {
		outcome, err := s.commands.Execute(ctx, tgt.commandName, req.Message().CommandArgument(), progress, history)
		invokeErr = err
		if outcome != nil {
			followups = outcome.Followups
		}
	} else if tgt.agentTarget != nil {
		md := tgt.agentTarget.Metadata()
		if err := s.activator.ActivateByEvent(ctx, agent.ActivationEvent(md.ID)); err != nil {
			reqCtx.Warn("agent activation failed", slog.String("error", err.Error()))
		}

		variables := s.resolveVariables(ctx, session, req, md, progress)
		session.SetRequestVariables(req, variables)

		areq = &agent.Request{
			SessionID:              session.ID(),
			RequestID:              req.ID(),
			AgentID:                md.ID,
			PromptText:             req.Message().PromptText(),
			Command:                req.Command(),
			Variables:              variables,
			Attempt:                req.Attempt(),
			Location:               session.InitialLocation(),
			EnableCommandDetection: req.Command() == "",
		}
		result, invokeErr = tgt.agentTarget.Invoke(ctx, areq, progress, history)
		provider, _ = tgt.agentTarget.(agent.FollowupProvider)
	} else {
		invokeErr = agent.ErrNoDefaultAgent
	}

	s.finishRequest(ctx, reqCtx, session, req, pend, result, invokeErr, firstProgress.Load())

	if len(followups) > 0 {
		session.SetFollowups(req, followups)
	}
	if provider != nil && s.outcomeOf(req, pend) == OutcomeSuccess {
		s.computeFollowups(session, req, provider, areq, result, history)
	}
}

// finishRequest classifies the terminal state, records the result and
// completes the response exactly once.
func (s *Service) finishRequest(ctx context.Context, reqCtx *observability.RequestContext, session *model.Session, req *model.Request, pend *pendingRequest, result *agent.Result, invokeErr error, firstProgress int64) {
	cancelled := s.wasCancelled(pend) || errors.Is(invokeErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)

	if result == nil {
		result = &agent.Result{}
	}
	if invokeErr != nil && !cancelled && result.ErrorDetails == nil {
		result.ErrorDetails = &agent.ErrorDetails{Message: invokeErr.Error()}
	}
	if result.Timings == nil {
		result.Timings = &agent.Timings{TotalElapsed: reqCtx.DurationMs()}
	}
	if result.Timings.FirstProgress == 0 {
		result.Timings.FirstProgress = firstProgress
	}

	hasOutput := false
	if resp := req.Response(); resp != nil && len(resp.Parts()) > 0 {
		hasOutput = true
	}
	outcome := classifyOutcome(cancelled, result.ErrorDetails, hasOutput)

	session.SetResponse(req, result)
	if cancelled {
		session.CancelRequest(req)
	} else {
		session.CompleteResponse(req)
	}

	if s.recorder != nil {
		s.recorder.RecordInvocation(reqCtx.AgentID, string(outcome), reqCtx.Duration())
	}
	reqCtx.Info("request completed",
		slog.String(observability.LogFieldOutcome, string(outcome)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
}

func (s *Service) outcomeOf(req *model.Request, pend *pendingRequest) Outcome {
	resp := req.Response()
	if resp == nil {
		return OutcomeError
	}
	var details *agent.ErrorDetails
	if resp.Result() != nil {
		details = resp.Result().ErrorDetails
	}
	return classifyOutcome(resp.IsCancelled() || s.wasCancelled(pend), details, len(resp.Parts()) > 0)
}

func (s *Service) wasCancelled(pend *pendingRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pend.cancelled
}

// resolveVariables resolves referenced variables plus the agent's
// implicit ones for locations that carry editor context.
func (s *Service) resolveVariables(ctx context.Context, session *model.Session, req *model.Request, md agent.Metadata, progress agent.ProgressFunc) []agent.VariableEntry {
	if s.variables == nil {
		return nil
	}

	entries := s.variables.Resolve(ctx, req.Message(), progress)
	if session.InitialLocation().ImplicitVariablesEnabled() && len(md.DefaultImplicitVariables) > 0 {
		entries = append(entries, s.variables.ResolveImplicit(ctx, md.DefaultImplicitVariables, req.Message().PromptText(), progress)...)
	}
	return entries
}

// buildHistory collects prior completed turns for the agent.
func (s *Service) buildHistory(session *model.Session, current *model.Request) []agent.HistoryEntry {
	var history []agent.HistoryEntry
	for _, r := range session.Requests() {
		if r.ID() == current.ID() {
			continue
		}
		resp := r.Response()
		if resp == nil || !resp.IsComplete() || resp.IsCancelled() {
			continue
		}
		history = append(history, agent.HistoryEntry{
			Prompt:   r.Message().PromptText(),
			Response: resp.Markdown(),
		})
	}
	return history
}

// computeFollowups asks the provider for followups in the background,
// cancellable per session when the next turn starts.
func (s *Service) computeFollowups(session *model.Session, req *model.Request, provider agent.FollowupProvider, areq *agent.Request, result *agent.Result, history []agent.HistoryEntry) {
	fctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancelFollowupsLocked(session.ID())
	s.followupCancels[session.ID()] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if _, ok := s.followupCancels[session.ID()]; ok {
				delete(s.followupCancels, session.ID())
			}
			s.mu.Unlock()
			cancel()
		}()

		followups, err := provider.ProvideFollowups(fctx, areq, result, history)
		if err != nil || fctx.Err() != nil {
			return
		}
		if len(followups) > 0 {
			session.SetFollowups(req, followups)
		}
	}()
}

// cancelFollowupsLocked stops followup computation for a session.
// Caller holds s.mu.
func (s *Service) cancelFollowupsLocked(sessionID string) {
	if cancel, ok := s.followupCancels[sessionID]; ok {
		cancel()
		delete(s.followupCancels, sessionID)
	}
}

// ResendRequest cancels any in-flight work, removes the request and
// sends its original message again with an incremented attempt.
func (s *Service) ResendRequest(ctx context.Context, req *model.Request, opts *SendOptions) (*SendReceipt, error) {
	session := req.Session()
	message := req.Message().Text
	attempt := req.Attempt() + 1

	s.cancelAndWait(session.ID())

	if err := session.RemoveRequest(req.ID(), model.RemovalResend); err != nil {
		return nil, err
	}

	resendOpts := &SendOptions{Attempt: attempt}
	if opts != nil {
		resendOpts.AgentName = opts.AgentName
		resendOpts.Progress = opts.Progress
	}
	return s.SendRequest(ctx, session.ID(), message, resendOpts)
}

// CancelCurrentRequestForSession cancels the session's in-flight
// request. Safe to call when nothing is pending.
func (s *Service) CancelCurrentRequestForSession(sessionID string) {
	s.mu.Lock()
	pend, ok := s.pending[sessionID]
	if ok {
		pend.cancelled = true
		pend.cancel()
	}
	s.mu.Unlock()
}

// cancelAndWait cancels the pending request and waits for its
// goroutine to finish, so a follow-on send cannot be rejected as
// in-flight.
func (s *Service) cancelAndWait(sessionID string) {
	s.mu.Lock()
	pend, ok := s.pending[sessionID]
	if ok {
		pend.cancelled = true
		pend.cancel()
	}
	s.mu.Unlock()

	if ok {
		<-pend.done
	}
}

// RemoveRequest removes a request from a live session, cancelling it
// first if it is the one in flight.
func (s *Service) RemoveRequest(_ context.Context, sessionID, requestID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	pend := s.pending[sessionID]
	s.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	if pend != nil && pend.requestID == requestID {
		s.cancelAndWait(sessionID)
	}
	return session.RemoveRequest(requestID, model.RemovalResend)
}

// AdoptRequest moves a request into another live session. The pending
// bookkeeping follows the request so cancellation still reaches it.
func (s *Service) AdoptRequest(_ context.Context, toSessionID string, req *model.Request) error {
	fromID := req.Session().ID()

	s.mu.Lock()
	to, ok := s.sessions[toSessionID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	if pend, inFlight := s.pending[fromID]; inFlight && pend.requestID == req.ID() {
		delete(s.pending, fromID)
		s.pending[toSessionID] = pend
	}
	s.mu.Unlock()

	to.AdoptRequest(req)
	return nil
}

// ClearSession removes a live session. Panel sessions are snapshotted
// into history first; other locations are dropped outright.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	s.cancelAndWait(sessionID)

	s.mu.Lock()
	s.cancelFollowupsLocked(sessionID)
	delete(s.sessions, sessionID)
	if session.InitialLocation() == agent.LocationPanel && len(session.Requests()) > 0 {
		s.persisted[sessionID] = session.Snapshot()
	}
	s.mu.Unlock()

	session.Dispose()
	s.events.emit(Event{SessionID: sessionID, Reason: DisposeCleared})

	return s.SaveState(ctx)
}

// GetHistory lists persisted sessions, newest first. Live and imported
// sessions are excluded, as are sessions without any request.
func (s *Service) GetHistory(_ context.Context) []HistoryEntry {
	s.mu.Lock()
	snapshots := make([]*model.Snapshot, 0, len(s.persisted))
	for id, snap := range s.persisted {
		if _, live := s.sessions[id]; live {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	s.mu.Unlock()

	var entries []HistoryEntry
	for _, snap := range snapshots {
		if snap.IsImported || len(snap.Requests) == 0 {
			continue
		}
		session := model.FromSnapshot(snap)
		entries = append(entries, HistoryEntry{
			SessionID:    snap.SessionID,
			Title:        session.Title(),
			Snippet:      session.Snippet(),
			CreationDate: snap.CreationDate,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreationDate > entries[j].CreationDate
	})
	return entries
}

// RemoveHistoryEntry deletes one persisted session.
func (s *Service) RemoveHistoryEntry(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.persisted, sessionID)
	s.mu.Unlock()
	return s.SaveState(ctx)
}

// ClearAllHistoryEntries deletes every persisted session. Live
// sessions are untouched.
func (s *Service) ClearAllHistoryEntries(ctx context.Context) error {
	s.mu.Lock()
	s.persisted = make(map[string]*model.Snapshot)
	s.mu.Unlock()
	return s.SaveState(ctx)
}

// SaveState persists the serializable session set: live panel sessions
// that have at least one request, plus persisted snapshots of sessions
// no longer live. The store bounds and orders the result.
func (s *Service) SaveState(ctx context.Context) error {
	if s.history == nil {
		return nil
	}

	s.mu.Lock()
	var snapshots []*model.Snapshot
	for _, session := range s.sessions {
		if session.InitialLocation() != agent.LocationPanel || session.IsImported() {
			continue
		}
		if len(session.Requests()) == 0 {
			continue
		}
		snapshots = append(snapshots, session.Snapshot())
	}
	for id, snap := range s.persisted {
		if _, live := s.sessions[id]; live {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	s.mu.Unlock()

	return s.history.Save(ctx, snapshots)
}

// TransferSession offers a live session to another workspace. The
// session stays live here; the receiving workspace claims the
// snapshot within the transfer window.
func (s *Service) TransferSession(ctx context.Context, sessionID, toWorkspace, inputValue string) error {
	if s.transfers == nil {
		return errors.New("persistence is disabled")
	}

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	return s.transfers.Push(ctx, store.TransferEntry{
		ToWorkspace: toWorkspace,
		Chat:        session.Snapshot(),
		InputValue:  inputValue,
	})
}

// AddCompleteRequest appends a finished turn without invoking any
// agent, used when replaying a turn that ran elsewhere.
func (s *Service) AddCompleteRequest(ctx context.Context, sessionID, message string, attempt int, response *CompletedResponse) (*model.Request, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	if err := session.WaitForInitialization(ctx); err != nil {
		return nil, err
	}

	parsed := s.parser.Parse(sessionID, message, session.InitialLocation(), nil)
	agentID, cmd, _ := s.resolveTarget(session, parsed)
	req := session.AddRequest(parsed, nil, attempt, agentID, cmd)

	if response != nil {
		if response.Markdown != "" {
			session.AcceptResponseProgress(req, agent.MarkdownPart(response.Markdown))
		}
		if response.Result != nil {
			session.SetResponse(req, response.Result)
		}
		if len(response.Followups) > 0 {
			session.SetFollowups(req, response.Followups)
		}
	}
	session.CompleteResponse(req)
	return req, nil
}

var _ Orchestrator = (*Service)(nil)
