// Package chat orchestrates chat sessions: their lifecycle, the
// at-most-one-in-flight request invariant, cancellation, persistence
// and cross-workspace transfer.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/model"
)

// ErrUnknownSession indicates a session ID that is neither live nor
// restorable.
var ErrUnknownSession = errors.New("unknown session")

// SendOptions tunes how a message is handled.
type SendOptions struct {
	// AgentName pre-selects the agent when the message carries no
	// explicit agent reference.
	AgentName string
	// Attempt numbers retries of the same logical turn. Zero for the
	// first try.
	Attempt int
	// Progress, when set, receives every accepted progress part in
	// arrival order, e.g. for streaming over SSE.
	Progress agent.ProgressFunc
}

// SendReceipt describes an accepted message. Done is closed when the
// response completes, whatever the outcome.
type SendReceipt struct {
	Request *model.Request
	AgentID string
	Command string
	Done    <-chan struct{}
}

// CompletedResponse carries a pre-computed response for
// AddCompleteRequest, used when replaying turns that ran elsewhere.
type CompletedResponse struct {
	Markdown  string
	Result    *agent.Result
	Followups []agent.Followup
}

// HistoryEntry is one row of the persisted-session listing.
type HistoryEntry struct {
	SessionID    string `json:"sessionId"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet,omitempty"`
	CreationDate int64  `json:"creationDate"`
}

// InvocationRecorder receives one record per completed invocation.
// Satisfied by observability.Metrics.
type InvocationRecorder interface {
	RecordInvocation(agentID, outcome string, duration time.Duration)
}

// Orchestrator is the chat session service surface.
type Orchestrator interface {
	StartSession(ctx context.Context, location agent.Location) *model.Session
	GetSession(sessionID string) (*model.Session, bool)
	GetOrRestoreSession(ctx context.Context, sessionID string) (*model.Session, error)
	LoadSessionFromContent(ctx context.Context, snapshot *model.Snapshot) (*model.Session, error)

	SendRequest(ctx context.Context, sessionID, message string, opts *SendOptions) (*SendReceipt, error)
	ResendRequest(ctx context.Context, req *model.Request, opts *SendOptions) (*SendReceipt, error)
	AddCompleteRequest(ctx context.Context, sessionID, message string, attempt int, response *CompletedResponse) (*model.Request, error)
	CancelCurrentRequestForSession(sessionID string)
	RemoveRequest(ctx context.Context, sessionID, requestID string) error
	AdoptRequest(ctx context.Context, toSessionID string, req *model.Request) error

	ClearSession(ctx context.Context, sessionID string) error
	GetHistory(ctx context.Context) []HistoryEntry
	RemoveHistoryEntry(ctx context.Context, sessionID string) error
	ClearAllHistoryEntries(ctx context.Context) error
	SaveState(ctx context.Context) error

	TransferSession(ctx context.Context, sessionID, toWorkspace, inputValue string) error
}
