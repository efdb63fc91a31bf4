package interfaces

// Notifier delivers best-effort outbound notifications. Implementations must
// never block the caller or surface delivery failures to it.
type Notifier interface {
	Notify(eventType string, payload map[string]any)
}
