// Package parser turns raw chat input into a structured request made of
// typed parts, each carrying the exact source range it occupies. Joining
// every part's source text in order always reproduces the raw input.
package parser

import "strings"

// Leader characters recognized at a word boundary.
const (
	AgentLeader    = '@'
	CommandLeader  = '/'
	VariableLeader = '#'
)

// Range is a half-open [Start, End) span of byte offsets into the raw
// request text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PartKind discriminates the closed set of request part types.
type PartKind string

const (
	PartText            PartKind = "text"
	PartAgent           PartKind = "agent"
	PartAgentSubcommand PartKind = "agentSubcommand"
	PartSlashCommand    PartKind = "slashCommand"
	PartVariable        PartKind = "variable"
)

// Part is one span of the parsed request. Implementations form a closed
// set; consumers dispatch on Kind.
type Part interface {
	Kind() PartKind
	Span() Range
	// SourceText is the exact slice of raw input this part occupies.
	SourceText() string
}

// TextPart is a plain text span, including any unrecognized tokens.
type TextPart struct {
	Range Range  `json:"range"`
	Text  string `json:"text"`
}

func (p TextPart) Kind() PartKind     { return PartText }
func (p TextPart) Span() Range        { return p.Range }
func (p TextPart) SourceText() string { return p.Text }

// AgentPart is an "@name" reference resolved against the agent
// registry. At most one per message is semantically meaningful.
type AgentPart struct {
	Range     Range  `json:"range"`
	Raw       string `json:"raw"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

func (p AgentPart) Kind() PartKind     { return PartAgent }
func (p AgentPart) Span() Range        { return p.Range }
func (p AgentPart) SourceText() string { return p.Raw }

// AgentSubcommandPart is a "/name" reference immediately following an
// agent reference, matched against that agent's contributed commands.
type AgentSubcommandPart struct {
	Range   Range  `json:"range"`
	Raw     string `json:"raw"`
	Command string `json:"command"`
}

func (p AgentSubcommandPart) Kind() PartKind     { return PartAgentSubcommand }
func (p AgentSubcommandPart) Span() Range        { return p.Range }
func (p AgentSubcommandPart) SourceText() string { return p.Raw }

// SlashCommandPart is a leading "/name" with no agent reference,
// matched against the standalone command registry.
type SlashCommandPart struct {
	Range   Range  `json:"range"`
	Raw     string `json:"raw"`
	Command string `json:"command"`
}

func (p SlashCommandPart) Kind() PartKind     { return PartSlashCommand }
func (p SlashCommandPart) Span() Range        { return p.Range }
func (p SlashCommandPart) SourceText() string { return p.Raw }

// VariablePart is a "#name" reference whose value is substituted later.
// Its range is preserved precisely for decoration and substitution.
type VariablePart struct {
	Range      Range  `json:"range"`
	Raw        string `json:"raw"`
	Name       string `json:"name"`
	VariableID string `json:"variableId,omitempty"`
}

func (p VariablePart) Kind() PartKind     { return PartVariable }
func (p VariablePart) Span() Range        { return p.Range }
func (p VariablePart) SourceText() string { return p.Raw }

// ParsedRequest is the structured form of one user message.
type ParsedRequest struct {
	SessionID string
	// Text is the raw input. Equal to the in-order join of every
	// part's SourceText.
	Text  string
	Parts []Part
}

// AgentPart returns the message's agent reference, if any.
func (r *ParsedRequest) AgentPart() (AgentPart, bool) {
	for _, p := range r.Parts {
		if a, ok := p.(AgentPart); ok {
			return a, true
		}
	}
	return AgentPart{}, false
}

// SubcommandPart returns the agent subcommand reference, if any.
func (r *ParsedRequest) SubcommandPart() (AgentSubcommandPart, bool) {
	for _, p := range r.Parts {
		if c, ok := p.(AgentSubcommandPart); ok {
			return c, true
		}
	}
	return AgentSubcommandPart{}, false
}

// SlashCommandPart returns the standalone slash command, if any.
func (r *ParsedRequest) SlashCommandPart() (SlashCommandPart, bool) {
	for _, p := range r.Parts {
		if c, ok := p.(SlashCommandPart); ok {
			return c, true
		}
	}
	return SlashCommandPart{}, false
}

// Variables returns every variable reference in source order.
func (r *ParsedRequest) Variables() []VariablePart {
	var vars []VariablePart
	for _, p := range r.Parts {
		if v, ok := p.(VariablePart); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// PromptText is the message with agent and command tokens removed,
// used as the prompt handed to the agent. Variable references keep
// their source text so ranges elsewhere stay meaningful.
func (r *ParsedRequest) PromptText() string {
	var b strings.Builder
	for _, p := range r.Parts {
		switch p.Kind() {
		case PartAgent, PartAgentSubcommand, PartSlashCommand:
			continue
		default:
			b.WriteString(p.SourceText())
		}
	}
	return strings.TrimSpace(b.String())
}

// CommandArgument is the text following a slash command token, used as
// the argument handed to the command handler.
func (r *ParsedRequest) CommandArgument() string {
	cmd, ok := r.SlashCommandPart()
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.Text[cmd.Range.End:])
}
