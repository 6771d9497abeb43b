package agent

// ProgressKind discriminates the payload of a ProgressPart.
type ProgressKind string

const (
	// ProgressMarkdown carries a fragment of markdown content.
	ProgressMarkdown ProgressKind = "markdownContent"
	// ProgressTree carries hierarchical tree data (e.g. a file listing).
	ProgressTree ProgressKind = "treeData"
	// ProgressReference carries a URI the response refers to.
	ProgressReference ProgressKind = "reference"
)

// TreeItem is one node of tree-shaped progress data.
type TreeItem struct {
	Label    string     `json:"label"`
	URI      string     `json:"uri,omitempty"`
	Children []TreeItem `json:"children,omitempty"`
}

// ProgressPart is one incremental fragment of a response, appended in
// the order the agent emits it.
type ProgressPart struct {
	Kind    ProgressKind `json:"kind"`
	Content string       `json:"content,omitempty"`
	Tree    []TreeItem   `json:"tree,omitempty"`
	URI     string       `json:"uri,omitempty"`
}

// MarkdownPart is a convenience constructor for the common case.
func MarkdownPart(content string) ProgressPart {
	return ProgressPart{Kind: ProgressMarkdown, Content: content}
}

// ProgressFunc receives progress parts as an agent or command emits them.
// Implementations must tolerate being called after the invocation's
// context is cancelled; such calls are dropped by the caller side.
type ProgressFunc func(ProgressPart)
