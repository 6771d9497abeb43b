package model

import (
	"time"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/parser"
)

// PartSnapshot is the serialized form of one request part. Kind selects
// which of the optional fields are meaningful.
type PartSnapshot struct {
	Kind       parser.PartKind `json:"kind"`
	Range      parser.Range    `json:"range"`
	Text       string          `json:"text"`
	AgentID    string          `json:"agentId,omitempty"`
	AgentName  string          `json:"agentName,omitempty"`
	Command    string          `json:"command,omitempty"`
	Name       string          `json:"name,omitempty"`
	VariableID string          `json:"variableId,omitempty"`
}

// MessageSnapshot is the serialized parsed request.
type MessageSnapshot struct {
	Text  string         `json:"text"`
	Parts []PartSnapshot `json:"parts"`
}

// ResponseSnapshot is the serialized response of a completed turn.
type ResponseSnapshot struct {
	Parts     []agent.ProgressPart `json:"parts,omitempty"`
	Result    *agent.Result        `json:"result,omitempty"`
	Complete  bool                 `json:"complete"`
	Cancelled bool                 `json:"cancelled,omitempty"`
	Followups []agent.Followup     `json:"followups,omitempty"`
}

// RequestSnapshot is the serialized form of one turn.
type RequestSnapshot struct {
	ID        string                `json:"id"`
	Message   MessageSnapshot       `json:"message"`
	Variables []agent.VariableEntry `json:"variables,omitempty"`
	Attempt   int                   `json:"attempt,omitempty"`
	AgentID   string                `json:"agentId,omitempty"`
	Command   string                `json:"command,omitempty"`
	Response  *ResponseSnapshot     `json:"response,omitempty"`
}

// Snapshot is the full serialized session, sufficient to rebuild an
// equivalent Session with FromSnapshot.
type Snapshot struct {
	SessionID       string                `json:"sessionId"`
	InitialLocation agent.Location        `json:"initialLocation"`
	CreationDate    int64                 `json:"creationDate"`
	IsImported      bool                  `json:"isImported,omitempty"`
	Welcome         *agent.WelcomeMessage `json:"welcome,omitempty"`
	Requests        []RequestSnapshot     `json:"requests"`
}

// Snapshot captures the session's serializable state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		SessionID:       s.id,
		InitialLocation: s.location,
		CreationDate:    s.creation,
		IsImported:      s.imported,
		Welcome:         s.welcome,
		Requests:        make([]RequestSnapshot, 0, len(s.requests)),
	}
	for _, r := range s.requests {
		r.mu.Lock()
		rs := RequestSnapshot{
			ID:        r.id,
			Message:   messageToSnapshot(r.message),
			Variables: r.variables,
			Attempt:   r.attempt,
			AgentID:   r.agentID,
			Command:   r.command,
		}
		if r.response != nil {
			rs.Response = &ResponseSnapshot{
				Parts:     r.response.parts,
				Result:    r.response.result,
				Complete:  r.response.complete,
				Cancelled: r.response.cancelled,
				Followups: r.response.followups,
			}
		}
		r.mu.Unlock()
		snap.Requests = append(snap.Requests, rs)
	}
	return snap
}

// FromSnapshot rebuilds a session from its serialized form. The
// restored session starts Uninitialized; the orchestrator initializes
// it before use, keeping any welcome message already present.
func FromSnapshot(snap *Snapshot) *Session {
	s := &Session{
		id:       snap.SessionID,
		location: snap.InitialLocation,
		creation: snap.CreationDate,
		imported: snap.IsImported,
		welcome:  snap.Welcome,
		state:    StateUninitialized,
		initDone: make(chan struct{}),
	}
	if s.location == "" {
		s.location = agent.LocationPanel
	}
	if s.creation == 0 {
		s.creation = time.Now().UnixMilli()
	}

	for _, rs := range snap.Requests {
		req := &Request{
			id:        rs.ID,
			session:   s,
			message:   messageFromSnapshot(s.id, rs.Message),
			variables: rs.Variables,
			attempt:   rs.Attempt,
			agentID:   rs.AgentID,
			command:   rs.Command,
		}
		if rs.Response != nil {
			req.response = &Response{
				req:       req,
				parts:     rs.Response.Parts,
				result:    rs.Response.Result,
				cancelled: rs.Response.Cancelled,
				followups: rs.Response.Followups,
				// Work from a previous process cannot resume, so a
				// restored response is always terminal.
				complete: true,
			}
		}
		s.requests = append(s.requests, req)
	}
	return s
}

func messageToSnapshot(msg *parser.ParsedRequest) MessageSnapshot {
	ms := MessageSnapshot{Text: msg.Text, Parts: make([]PartSnapshot, 0, len(msg.Parts))}
	for _, p := range msg.Parts {
		ps := PartSnapshot{Kind: p.Kind(), Range: p.Span(), Text: p.SourceText()}
		switch t := p.(type) {
		case parser.AgentPart:
			ps.AgentID = t.AgentID
			ps.AgentName = t.AgentName
		case parser.AgentSubcommandPart:
			ps.Command = t.Command
		case parser.SlashCommandPart:
			ps.Command = t.Command
		case parser.VariablePart:
			ps.Name = t.Name
			ps.VariableID = t.VariableID
		}
		ms.Parts = append(ms.Parts, ps)
	}
	return ms
}

func messageFromSnapshot(sessionID string, ms MessageSnapshot) *parser.ParsedRequest {
	msg := &parser.ParsedRequest{SessionID: sessionID, Text: ms.Text}
	for _, ps := range ms.Parts {
		switch ps.Kind {
		case parser.PartAgent:
			msg.Parts = append(msg.Parts, parser.AgentPart{
				Range: ps.Range, Raw: ps.Text,
				AgentID: ps.AgentID, AgentName: ps.AgentName,
			})
		case parser.PartAgentSubcommand:
			msg.Parts = append(msg.Parts, parser.AgentSubcommandPart{
				Range: ps.Range, Raw: ps.Text, Command: ps.Command,
			})
		case parser.PartSlashCommand:
			msg.Parts = append(msg.Parts, parser.SlashCommandPart{
				Range: ps.Range, Raw: ps.Text, Command: ps.Command,
			})
		case parser.PartVariable:
			msg.Parts = append(msg.Parts, parser.VariablePart{
				Range: ps.Range, Raw: ps.Text,
				Name: ps.Name, VariableID: ps.VariableID,
			})
		default:
			msg.Parts = append(msg.Parts, parser.TextPart{Range: ps.Range, Text: ps.Text})
		}
	}
	return msg
}
