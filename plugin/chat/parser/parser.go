package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hrygo/chatkit/plugin/chat/agent"
)

// AgentNames answers whether an "@name" token refers to a registered
// agent at a location. Satisfied by *agent.Registry.
type AgentNames interface {
	AgentByName(name string, loc agent.Location) (agent.Agent, bool)
}

// CommandNames answers whether a "/name" token is a registered
// standalone command. Satisfied by *command.Registry.
type CommandNames interface {
	HasCommand(name string) bool
}

// VariableNames answers whether a "#name" token is a registered
// variable. Satisfied by *variable.Registry.
type VariableNames interface {
	HasVariable(name string) bool
	VariableID(name string) string
}

// Context carries per-call parser state.
type Context struct {
	// SelectedAgent resolves its own name regardless of location,
	// used when the caller pre-selects an agent.
	SelectedAgent agent.Agent
}

// Parser recognizes agent, command and variable references in raw
// input. Parsing never fails; unrecognized tokens degrade to text.
type Parser struct {
	agents    AgentNames
	commands  CommandNames
	variables VariableNames
}

// NewParser creates a parser over the given registries. Any of them
// may be nil, in which case the corresponding token kind is never
// recognized and stays plain text.
func NewParser(agents AgentNames, commands CommandNames, variables VariableNames) *Parser {
	return &Parser{agents: agents, commands: commands, variables: variables}
}

// Parse scans text left to right and returns its structured form. The
// in-order join of the parts' source text reproduces text exactly.
func (p *Parser) Parse(sessionID, text string, loc agent.Location, pctx *Context) *ParsedRequest {
	var (
		parts     []Part
		textStart int

		agentPart *AgentPart
		agentEnd  int
		sawSub    bool
		sawSlash  bool
	)

	flushText := func(end int) {
		if end > textStart {
			parts = append(parts, TextPart{
				Range: Range{Start: textStart, End: end},
				Text:  text[textStart:end],
			})
		}
	}

	for i := 0; i < len(text); {
		c := text[i]
		if (c == AgentLeader || c == CommandLeader || c == VariableLeader) && atWordBoundary(text, i) {
			name, end := scanIdent(text, i+1)
			if name != "" {
				var part Part
				switch c {
				case AgentLeader:
					if agentPart == nil {
						if a, ok := p.resolveAgent(name, loc, pctx); ok {
							ap := AgentPart{
								Range:     Range{Start: i, End: end},
								Raw:       text[i:end],
								AgentID:   a.Metadata().ID,
								AgentName: name,
							}
							agentPart = &ap
							agentEnd = end
							part = ap
						}
					}
				case CommandLeader:
					if agentPart != nil && !sawSub && strings.TrimSpace(text[agentEnd:i]) == "" {
						if a, ok := p.resolveAgent(agentPart.AgentName, loc, pctx); ok {
							if _, ok := a.Metadata().Command(name); ok {
								sawSub = true
								part = AgentSubcommandPart{
									Range:   Range{Start: i, End: end},
									Raw:     text[i:end],
									Command: name,
								}
							}
						}
					} else if agentPart == nil && !sawSlash && strings.TrimSpace(text[:i]) == "" {
						if p.commands != nil && p.commands.HasCommand(name) {
							sawSlash = true
							part = SlashCommandPart{
								Range:   Range{Start: i, End: end},
								Raw:     text[i:end],
								Command: name,
							}
						}
					}
				case VariableLeader:
					if p.variables != nil && p.variables.HasVariable(name) {
						part = VariablePart{
							Range:      Range{Start: i, End: end},
							Raw:        text[i:end],
							Name:       name,
							VariableID: p.variables.VariableID(name),
						}
					}
				}

				if part != nil {
					flushText(i)
					parts = append(parts, part)
					textStart = end
					i = end
					continue
				}
			}
		}

		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	flushText(len(text))

	return &ParsedRequest{SessionID: sessionID, Text: text, Parts: parts}
}

func (p *Parser) resolveAgent(name string, loc agent.Location, pctx *Context) (agent.Agent, bool) {
	if pctx != nil && pctx.SelectedAgent != nil && pctx.SelectedAgent.Metadata().Name == name {
		return pctx.SelectedAgent, true
	}
	if p.agents == nil {
		return nil, false
	}
	return p.agents.AgentByName(name, loc)
}

// atWordBoundary reports whether position i starts a token, i.e. is at
// the beginning of the text or preceded by whitespace.
func atWordBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsSpace(r)
}

// scanIdent returns the identifier starting at position start and the
// byte offset just past it. Identifiers are letters, digits, '_', '-'.
func scanIdent(text string, start int) (string, int) {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			break
		}
		i += size
	}
	return text[start:i], i
}
