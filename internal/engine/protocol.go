package engine

// Command is a message into the engine. Commands arrive on a single channel
// and are processed by the engine goroutine in arrival order.
type Command interface {
	isCommand()
}

// LoadCommand asks the engine to load the model. Idempotent: when a handle
// already exists the engine immediately reports readiness without refetching.
type LoadCommand struct{}

// RankCommand submits one re-ranking request. RequestID must be strictly
// increasing within an engine lifetime; a newer id supersedes any in-flight
// request. The document list is owned by the host and immutable once
// submitted.
type RankCommand struct {
	RequestID uint64
	Query     string
	Documents []Document
}

func (LoadCommand) isCommand() {}
func (RankCommand) isCommand() {}

// Event is a message out of the engine. Events produced by the same request
// preserve emission order; there is no cross-request ordering guarantee
// beyond the id carried by ranking events.
type Event interface {
	isEvent()
}

// StatusEvent carries advisory progress text (asset being fetched, not-ready
// rejections).
type StatusEvent struct {
	Message string
}

// ModelReadyEvent signals the model handle exists and ranking may proceed.
type ModelReadyEvent struct {
	Model string
}

// RankUpdateEvent carries one incremental snapshot for a request: scored
// documents first (descending score, failures unscored at the end of the
// scored segment), then still-queued eligible documents, then the
// pass-through tail.
type RankUpdateEvent struct {
	RequestID uint64
	Documents []Document
}

// RankCompleteEvent is the terminal snapshot for a request: scored documents
// followed by the pass-through tail. Emitted exactly once per request that
// finishes without being superseded.
type RankCompleteEvent struct {
	RequestID uint64
	Documents []Document
}

// ErrorEvent reports a fatal load failure (asset fetch or model
// construction). Per-document scoring failures are never surfaced here.
type ErrorEvent struct {
	Code    string
	Message string
}

func (StatusEvent) isEvent()       {}
func (ModelReadyEvent) isEvent()   {}
func (RankUpdateEvent) isEvent()   {}
func (RankCompleteEvent) isEvent() {}
func (ErrorEvent) isEvent()        {}
