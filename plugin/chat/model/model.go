// Package model holds the conversation aggregate: an ordered sequence
// of requests, each with at most one streaming response. The session
// guards its request list and lifecycle; each request guards its own
// response state, so a request can change owner without racing the
// progress stream.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/parser"
)

// State is the session lifecycle state.
type State string

const (
	StateUninitialized        State = "uninitialized"
	StateInitializing         State = "initializing"
	StateReady                State = "ready"
	StateInitializationFailed State = "initializationFailed"
	StateDisposed             State = "disposed"
)

// RemovalReason tags why a request was removed from its session.
type RemovalReason string

const (
	// RemovalResend marks a request superseded by a resend.
	RemovalResend RemovalReason = "resend"
	// RemovalAdoption marks a request moved to another session.
	RemovalAdoption RemovalReason = "adoption"
)

var (
	// ErrRequestNotFound indicates a request ID unknown to the session.
	ErrRequestNotFound = errors.New("request not found")

	// ErrSessionDisposed indicates the session was disposed before it
	// finished initializing.
	ErrSessionDisposed = errors.New("session disposed")
)

// Session is one conversation: its identity, location, request history
// and initialization lifecycle.
type Session struct {
	mu sync.Mutex

	id       string
	location agent.Location
	// creation is a unix timestamp in milliseconds, immutable.
	creation int64
	imported bool

	requests []*Request
	welcome  *agent.WelcomeMessage

	state    State
	initErr  error
	initDone chan struct{}
}

// NewSession creates a session in the Uninitialized state.
func NewSession(location agent.Location) *Session {
	return &Session{
		id:       shortuuid.New(),
		location: location,
		creation: time.Now().UnixMilli(),
		state:    StateUninitialized,
		initDone: make(chan struct{}),
	}
}

func (s *Session) ID() string                      { return s.id }
func (s *Session) InitialLocation() agent.Location { return s.location }

// CreationDate is the unix-millisecond creation timestamp.
func (s *Session) CreationDate() int64 { return s.creation }

// IsImported reports whether the session came from imported content
// rather than a live conversation.
func (s *Session) IsImported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imported
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WelcomeMessage returns the welcome message set at initialization.
func (s *Session) WelcomeMessage() *agent.WelcomeMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

// StartInitialize transitions Uninitialized → Initializing.
func (s *Session) StartInitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized {
		s.state = StateInitializing
	}
}

// Initialize completes initialization. The welcome message is set once;
// a welcome already present (e.g. from a restored snapshot) is kept.
func (s *Session) Initialize(welcome *agent.WelcomeMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed || s.state == StateInitializationFailed {
		return
	}
	if s.welcome == nil {
		s.welcome = welcome
	}
	if s.state != StateReady {
		s.state = StateReady
		close(s.initDone)
	}
}

// SetInitializationError marks initialization as failed. One-shot.
func (s *Session) SetInitializationError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady || s.state == StateInitializationFailed || s.state == StateDisposed {
		return
	}
	s.initErr = err
	s.state = StateInitializationFailed
	close(s.initDone)
}

// WaitForInitialization blocks until the session is Ready, its
// initialization failed, or ctx is done.
func (s *Session) WaitForInitialization(ctx context.Context) error {
	select {
	case <-s.initDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

// Dispose transitions the session to Disposed. A session disposed
// before initialization completes reports ErrSessionDisposed to
// waiters.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed {
		return
	}
	if s.state == StateUninitialized || s.state == StateInitializing {
		s.initErr = ErrSessionDisposed
		close(s.initDone)
	}
	s.state = StateDisposed
}

// AddRequest appends a new request. The caller (the orchestrator) is
// responsible for the at-most-one-in-flight invariant; the model only
// guarantees append order.
func (s *Session) AddRequest(msg *parser.ParsedRequest, variables []agent.VariableEntry, attempt int, agentID, command string) *Request {
	req := &Request{
		id:        shortuuid.New(),
		session:   s,
		message:   msg,
		variables: variables,
		attempt:   attempt,
		agentID:   agentID,
		command:   command,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return req
}

// SetRequestVariables records resolved variable values, in reference
// order, after resolution completes.
func (s *Session) SetRequestVariables(req *Request, variables []agent.VariableEntry) {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.variables = variables
}

// GetRequest returns the request with the given ID.
func (s *Session) GetRequest(id string) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests {
		if r.id == id {
			return r, true
		}
	}
	return nil, false
}

// Requests returns the requests in chronological order.
func (s *Session) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// AcceptResponseProgress appends one progress part to the request's
// response, creating the response in its in-flight state if needed.
// Parts arriving after completion are ignored.
func (s *Session) AcceptResponseProgress(req *Request, part agent.ProgressPart) {
	req.mu.Lock()
	defer req.mu.Unlock()

	resp := req.responseLocked()
	if resp.complete {
		slog.Debug("progress after completion ignored",
			"session_id", s.id, "request_id", req.id)
		return
	}
	resp.parts = append(resp.parts, part)
}

// SetResponse records the terminal result data without flipping the
// completion flag.
func (s *Session) SetResponse(req *Request, result *agent.Result) {
	req.mu.Lock()
	defer req.mu.Unlock()

	resp := req.responseLocked()
	if resp.complete {
		return
	}
	resp.result = result
}

// CompleteResponse flips the response's completion flag false → true.
// The transition happens exactly once; further calls are no-ops.
func (s *Session) CompleteResponse(req *Request) {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.responseLocked().complete = true
}

// CancelRequest marks the request's response cancelled and complete,
// keeping whatever partial progress had been accepted.
func (s *Session) CancelRequest(req *Request) {
	req.mu.Lock()
	defer req.mu.Unlock()

	resp := req.responseLocked()
	if resp.complete {
		return
	}
	resp.cancelled = true
	resp.complete = true
}

// SetFollowups attaches suggested next actions. Safe to call before or
// after completion.
func (s *Session) SetFollowups(req *Request, followups []agent.Followup) {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.responseLocked().followups = followups
}

// RemoveRequest removes the request with the given ID. If its response
// was incomplete, the caller must already have cancelled the work tied
// to it; the model performs no cancellation itself.
func (s *Session) RemoveRequest(id string, reason RemovalReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeRequestLocked(id, reason)
}

func (s *Session) removeRequestLocked(id string, reason RemovalReason) error {
	for i, r := range s.requests {
		if r.id == id {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			r.mu.Lock()
			r.removalReason = reason
			r.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
}

// AdoptRequest transfers ownership of a request from its current
// session to this one. The request keeps its ID, response and
// progress; only its owner changes.
func (s *Session) AdoptRequest(req *Request) {
	old := req.Session()
	if old == s {
		return
	}

	// Lock sessions in ID order so concurrent adoptions cannot
	// deadlock; the request lock always comes after session locks.
	first, second := s, old
	if old.id < s.id {
		first, second = old, s
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	_ = old.removeRequestLocked(req.id, RemovalAdoption)

	req.mu.Lock()
	req.session = s
	req.mu.Unlock()

	s.requests = append(s.requests, req)
}

// Request is one user turn within a session. Its own mutex guards the
// response state and the owner pointer; the message, attempt, agent
// and command are immutable after creation.
type Request struct {
	id      string
	message *parser.ParsedRequest
	attempt int
	agentID string
	command string

	mu            sync.Mutex
	session       *Session
	variables     []agent.VariableEntry
	response      *Response
	removalReason RemovalReason
}

func (r *Request) ID() string { return r.id }

// Session returns the owning session. Changes on adoption.
func (r *Request) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Message is the parsed request this turn was created from.
func (r *Request) Message() *parser.ParsedRequest { return r.message }

func (r *Request) Attempt() int    { return r.attempt }
func (r *Request) AgentID() string { return r.agentID }
func (r *Request) Command() string { return r.command }

// Variables returns the resolved variable values in reference order.
func (r *Request) Variables() []agent.VariableEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]agent.VariableEntry, len(r.variables))
	copy(out, r.variables)
	return out
}

// Response returns the response, or nil while none exists.
func (r *Request) Response() *Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// responseLocked lazily creates the response. Caller holds r.mu.
func (r *Request) responseLocked() *Response {
	if r.response == nil {
		r.response = &Response{req: r}
	}
	return r.response
}

// Response is the streaming result of handling one request. Mutated
// only through the session's progress-append and completion methods.
type Response struct {
	req *Request

	parts     []agent.ProgressPart
	result    *agent.Result
	complete  bool
	cancelled bool
	followups []agent.Followup
}

// Parts returns the progress parts accepted so far, in arrival order.
func (p *Response) Parts() []agent.ProgressPart {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()

	out := make([]agent.ProgressPart, len(p.parts))
	copy(out, p.parts)
	return out
}

// Result returns the terminal result data, or nil while in flight.
func (p *Response) Result() *agent.Result {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()
	return p.result
}

// IsComplete reports whether the response reached its terminal state.
func (p *Response) IsComplete() bool {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()
	return p.complete
}

// IsCancelled reports whether the response was completed by
// cancellation.
func (p *Response) IsCancelled() bool {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()
	return p.cancelled
}

// Followups returns the attached followups, if any.
func (p *Response) Followups() []agent.Followup {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()

	out := make([]agent.Followup, len(p.followups))
	copy(out, p.followups)
	return out
}

// Markdown joins the markdown-bearing progress parts into one string.
func (p *Response) Markdown() string {
	p.req.mu.Lock()
	defer p.req.mu.Unlock()
	return joinMarkdown(p.parts)
}

func joinMarkdown(parts []agent.ProgressPart) string {
	var out string
	for _, part := range parts {
		if part.Kind == agent.ProgressMarkdown {
			out += part.Content
		}
	}
	return out
}
