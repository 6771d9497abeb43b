package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// LLMConfig holds configuration for an OpenAI-compatible agent.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// SystemPrompt is prepended to every invocation.
	SystemPrompt string

	Metadata Metadata
}

// LLMAgent fulfils chat requests by streaming completions from an
// OpenAI-compatible endpoint. Each streamed delta becomes one markdown
// progress part, in arrival order.
type LLMAgent struct {
	client *openai.Client
	model  string
	system string
	md     Metadata
}

// NewLLMAgent creates an agent backed by an OpenAI-compatible API.
func NewLLMAgent(cfg LLMConfig) (*LLMAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM agent requires an API key")
	}
	if cfg.Metadata.ID == "" {
		return nil, fmt.Errorf("LLM agent requires metadata with an ID")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &LLMAgent{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		system: cfg.SystemPrompt,
		md:     cfg.Metadata,
	}, nil
}

func (a *LLMAgent) Metadata() Metadata {
	return a.md
}

// Invoke streams a completion for the request. Cancellation of ctx
// stops the stream; the partial output already emitted stands.
func (a *LLMAgent) Invoke(ctx context.Context, req *Request, progress ProgressFunc, history []HistoryEntry) (*Result, error) {
	messages := a.buildMessages(req, history)

	start := time.Now()
	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var firstProgress int64 = -1
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-stream. Partial progress stands.
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receive completion delta: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if firstProgress < 0 {
			firstProgress = time.Since(start).Milliseconds()
		}
		progress(MarkdownPart(delta))
	}

	elapsed := time.Since(start)
	slog.Debug("LLM agent completed",
		"agent", a.md.ID,
		"session_id", req.SessionID,
		"latency_ms", elapsed.Milliseconds())

	timings := &Timings{TotalElapsed: elapsed.Milliseconds()}
	if firstProgress >= 0 {
		timings.FirstProgress = firstProgress
	}
	return &Result{Timings: timings}, nil
}

// buildMessages converts history plus the current prompt into chat
// completion messages.
func (a *LLMAgent) buildMessages(req *Request, history []HistoryEntry) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)*2+2)

	if a.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.system,
		})
	}

	for _, h := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: h.Prompt},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: h.Response},
		)
	}

	prompt := req.PromptText
	if req.Command != "" {
		prompt = fmt.Sprintf("[command: %s]\n%s", req.Command, prompt)
	}
	if len(req.Variables) > 0 {
		var b strings.Builder
		b.WriteString("Context:\n")
		for _, v := range req.Variables {
			fmt.Fprintf(&b, "- %s: %s\n", v.Name, v.Value)
		}
		b.WriteString("\n")
		prompt = b.String() + prompt
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

var _ Agent = (*LLMAgent)(nil)
