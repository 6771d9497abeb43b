package agent

import "context"

// MockAgent is a func-driven agent for tests.
type MockAgent struct {
	MD         Metadata
	InvokeFunc func(ctx context.Context, req *Request, progress ProgressFunc, history []HistoryEntry) (*Result, error)

	WelcomeFunc   func(ctx context.Context, loc Location) (*WelcomeMessage, error)
	FollowupsFunc func(ctx context.Context, req *Request, result *Result, history []HistoryEntry) ([]Followup, error)
}

func (m *MockAgent) Metadata() Metadata { return m.MD }

func (m *MockAgent) Invoke(ctx context.Context, req *Request, progress ProgressFunc, history []HistoryEntry) (*Result, error) {
	if m.InvokeFunc == nil {
		return &Result{}, nil
	}
	return m.InvokeFunc(ctx, req, progress, history)
}

func (m *MockAgent) ProvideWelcomeMessage(ctx context.Context, loc Location) (*WelcomeMessage, error) {
	if m.WelcomeFunc == nil {
		return nil, nil
	}
	return m.WelcomeFunc(ctx, loc)
}

func (m *MockAgent) ProvideFollowups(ctx context.Context, req *Request, result *Result, history []HistoryEntry) ([]Followup, error) {
	if m.FollowupsFunc == nil {
		return nil, nil
	}
	return m.FollowupsFunc(ctx, req, result, history)
}

var (
	_ Agent            = (*MockAgent)(nil)
	_ WelcomeProvider  = (*MockAgent)(nil)
	_ FollowupProvider = (*MockAgent)(nil)
)
