package allocator

// Observer receives allocation events. Implementations must be safe for concurrent use.
type Observer interface {
	// Issued reports n identifiers registered for entityType.
	Issued(entityType string, n int)

	// Collision reports a number rejected at stage "claim" or "registry".
	Collision(prefix, stage string)

	// Escalated reports a full key at fromLength.
	Escalated(prefix string, fromLength int)

	// Failed reports a terminal error by apperror code.
	Failed(code string)
}

type nopObserver struct{}

func (nopObserver) Issued(string, int) {}
func (nopObserver) Collision(string, string) {}
func (nopObserver) Escalated(string, int) {}
func (nopObserver) Failed(string) {}

// NopObserver returns an Observer that discards events.
func NopObserver() Observer {
	return nopObserver{}
}
