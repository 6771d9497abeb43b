package agent

import "context"

// Activator gates agent lookup behind extension-style activation. The
// orchestrator awaits WhenReady before resolving the default agent and
// ActivateByEvent before invoking a specific one.
type Activator interface {
	// WhenReady blocks until all contributed agents are registered.
	WhenReady(ctx context.Context) error

	// ActivateByEvent activates whatever contributes handlers for the
	// given event (see ActivationEvent).
	ActivateByEvent(ctx context.Context, event string) error
}

// NoopActivator satisfies Activator for hosts whose agents are all
// registered up front.
type NoopActivator struct{}

func (NoopActivator) WhenReady(context.Context) error               { return nil }
func (NoopActivator) ActivateByEvent(context.Context, string) error { return nil }
