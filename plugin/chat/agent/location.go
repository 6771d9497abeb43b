package agent

// Location identifies the UI surface a chat session is bound to.
// It determines the default agent and whether implicit context
// variables apply to a request.
type Location string

const (
	LocationPanel    Location = "panel"
	LocationEditor   Location = "editor"
	LocationNotebook Location = "notebook"
	LocationTerminal Location = "terminal"
)

// ImplicitVariablesEnabled reports whether requests made from this
// location receive the agent's default implicit variables.
func (l Location) ImplicitVariablesEnabled() bool {
	return l == LocationEditor || l == LocationNotebook
}

// ActivationEvent returns the activation event name for an agent,
// awaited through the Activator before the agent is invoked.
func ActivationEvent(agentID string) string {
	return "onChatParticipant:" + agentID
}
