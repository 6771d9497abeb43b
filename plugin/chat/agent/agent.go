// Package agent defines the chat agent contract and the registry that
// maps agent identifiers to invocable handlers, scoped by location.
package agent

import "context"

// Command describes a subcommand an agent contributes, invoked as
// "/name" immediately after the agent reference.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Metadata describes an agent to the registry and the parser.
type Metadata struct {
	ID          string
	Name        string
	Description string
	// Locations the agent serves. Empty means panel only.
	Locations []Location
	// IsDefault marks the agent as the default for its locations.
	IsDefault bool
	// Commands the agent contributes as subcommands.
	Commands []Command
	// DefaultImplicitVariables are resolved automatically for
	// editor/notebook requests addressed to this agent.
	DefaultImplicitVariables []string
}

// HasLocation reports whether the agent serves the given location.
func (m Metadata) HasLocation(loc Location) bool {
	if len(m.Locations) == 0 {
		return loc == LocationPanel
	}
	for _, l := range m.Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// Command returns the named subcommand, if the agent contributes it.
func (m Metadata) Command(name string) (Command, bool) {
	for _, c := range m.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// VariableEntry is one resolved variable value, in reference order.
type VariableEntry struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is the invocation payload handed to an agent.
type Request struct {
	SessionID  string
	RequestID  string
	AgentID    string
	// PromptText is the message with agent and command tokens removed.
	PromptText string
	// Command is the subcommand name, if one was referenced.
	Command   string
	Variables []VariableEntry
	Attempt   int
	Location  Location
	// EnableCommandDetection lets the agent run its own slash-command
	// detection over the prompt text.
	EnableCommandDetection bool

	AcceptedConfirmationData []any
	RejectedConfirmationData []any
}

// ErrorDetails is the error portion of a terminal agent result.
type ErrorDetails struct {
	Message string `json:"message"`
	// ResponseIsFiltered marks results suppressed by a content filter.
	ResponseIsFiltered bool `json:"responseIsFiltered,omitempty"`
}

// Timings reports how long the invocation took, in milliseconds.
type Timings struct {
	FirstProgress int64 `json:"firstProgress,omitempty"`
	TotalElapsed  int64 `json:"totalElapsed,omitempty"`
}

// Result is the terminal outcome of one agent invocation. A nil
// ErrorDetails means success. Metadata is passed through to the
// response untouched.
type Result struct {
	ErrorDetails *ErrorDetails  `json:"errorDetails,omitempty"`
	Timings      *Timings       `json:"timings,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// HistoryEntry is one prior turn handed to the agent for context.
type HistoryEntry struct {
	Prompt   string
	Response string
}

// FollowupKind discriminates suggested next actions.
type FollowupKind string

const (
	FollowupReply FollowupKind = "reply"
)

// Followup is one suggested next action attached after completion.
type Followup struct {
	Kind    FollowupKind `json:"kind"`
	Message string       `json:"message"`
	Title   string       `json:"title,omitempty"`
}

// WelcomeMessage is shown when a session initializes.
type WelcomeMessage struct {
	Content         []string   `json:"content"`
	SampleQuestions []Followup `json:"sampleQuestions,omitempty"`
}

// Agent handles chat requests for the locations it serves. Invoke
// streams incremental output through progress and returns the terminal
// result. Errors returned from Invoke are absorbed by the caller into
// an error response; they never surface to the UI as exceptions.
type Agent interface {
	Metadata() Metadata
	Invoke(ctx context.Context, req *Request, progress ProgressFunc, history []HistoryEntry) (*Result, error)
}

// WelcomeProvider is implemented by agents that contribute a welcome
// message and sample questions during session initialization.
type WelcomeProvider interface {
	ProvideWelcomeMessage(ctx context.Context, loc Location) (*WelcomeMessage, error)
}

// FollowupProvider is implemented by agents that suggest followups
// after a completed invocation.
type FollowupProvider interface {
	ProvideFollowups(ctx context.Context, req *Request, result *Result, history []HistoryEntry) ([]Followup, error)
}
