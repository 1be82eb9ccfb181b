// Package engine implements the incremental re-ranking engine: a single
// cooperative goroutine that loads the similarity model once, then re-scores
// bounded candidate lists against free-text queries, streaming progressively
// better-sorted snapshots and silently abandoning requests superseded by a
// newer one.
package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/knowbase/rerankd/internal/errors"
	"github.com/knowbase/rerankd/internal/model"
	"github.com/knowbase/rerankd/internal/scorer"
)

// State represents the engine lifecycle state.
type State string

const (
	// StateUnloaded means no model handle exists yet.
	StateUnloaded State = "unloaded"
	// StateLoading means an asset load is in progress.
	StateLoading State = "loading"
	// StateReady means the handle exists and rank commands proceed.
	StateReady State = "ready"
)

// Default engine constants.
const (
	// DefaultCutoff is the scoring cutoff N: candidates beyond this index
	// are never scored and pass through untouched. Matches the retrieval
	// stage's candidate pool size.
	DefaultCutoff = 30

	// DefaultCommandBuffer is the command channel capacity.
	DefaultCommandBuffer = 16

	// DefaultEventBuffer is the event channel capacity.
	DefaultEventBuffer = 64
)

// Loader builds the model handle from downloadable assets.
// Satisfied by *model.Loader.
type Loader interface {
	Load(ctx context.Context, status model.StatusFunc) (scorer.Handle, error)
}

// Config configures the Engine.
type Config struct {
	// Cutoff is the scoring cutoff N (default: DefaultCutoff).
	Cutoff int

	// CommandBuffer is the command channel capacity.
	CommandBuffer int

	// EventBuffer is the event channel capacity.
	EventBuffer int

	// Logger receives structured engine logs (default: slog.Default()).
	Logger *slog.Logger
}

// Engine is the background re-ranking unit. All mutable state (the model
// handle, the latest request id) is owned exclusively by the Run goroutine
// and touched only between yield points, so no locking is needed.
type Engine struct {
	cfg    Config
	loader Loader
	log    *slog.Logger

	commands chan Command
	events   chan Event

	// Owned by the Run goroutine.
	state   State
	handle  scorer.Handle
	latest  uint64
	pending *RankCommand
}

// New creates an engine in the Unloaded state.
func New(cfg Config, loader Loader) *Engine {
	if cfg.Cutoff <= 0 {
		cfg.Cutoff = DefaultCutoff
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultCommandBuffer
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		loader:   loader,
		log:      cfg.Logger,
		commands: make(chan Command, cfg.CommandBuffer),
		events:   make(chan Event, cfg.EventBuffer),
		state:    StateUnloaded,
	}
}

// Commands returns the channel the host submits commands on.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Events returns the channel the host drains events from. The host owns
// draining; a stalled host eventually blocks the engine.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Submit sends a command, honoring context cancellation.
func (e *Engine) Submit(ctx context.Context, cmd Command) error {
	select {
	case e.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the engine loop until ctx is cancelled. It must be called
// exactly once; the goroutine running it is the engine's single execution
// context.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if e.handle != nil {
			_ = e.handle.Close()
		}
		close(e.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.commands:
			e.dispatch(ctx, cmd)
		}

		// Drain stashed rank requests. A request superseded mid-scoring
		// stashes its successor here, so the newest request always runs.
		for e.pending != nil {
			next := *e.pending
			e.pending = nil
			e.rank(ctx, next)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// dispatch handles one command. Rank commands are stashed rather than run
// inline so that a dispatch from a yield point inside rank() never recurses.
func (e *Engine) dispatch(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case LoadCommand:
		e.handleLoad(ctx)
	case RankCommand:
		// Recording the id here is what supersedes any in-flight request.
		e.latest = c.RequestID
		e.pending = &c
	}
}

// handleLoad loads the model assets and constructs the handle. Idempotent:
// a second load with an existing handle reports readiness immediately.
func (e *Engine) handleLoad(ctx context.Context) {
	if e.state == StateReady {
		e.emit(ctx, ModelReadyEvent{Model: e.handle.ModelName()})
		return
	}

	e.state = StateLoading
	handle, err := e.loader.Load(ctx, func(msg string) {
		e.emit(ctx, StatusEvent{Message: msg})
	})
	if err != nil {
		// Fatal for this load attempt: no partial handle, no automatic
		// retry. The host retries by re-issuing the load command.
		e.state = StateUnloaded
		e.log.Error("model_load_failed", slog.String("error", err.Error()))
		e.emit(ctx, ErrorEvent{Code: errors.GetCode(err), Message: err.Error()})
		return
	}

	e.handle = handle
	e.state = StateReady
	e.log.Info("model_ready", slog.String("model", handle.ModelName()))
	e.emit(ctx, ModelReadyEvent{Model: handle.ModelName()})
}

// rank scores one request's eligible candidates, emitting a snapshot after
// each document and a terminal snapshot on completion. A request superseded
// at any yield point exits silently.
func (e *Engine) rank(ctx context.Context, req RankCommand) {
	if e.state != StateReady {
		// Advisory rejection, not an engine failure.
		e.log.Info("rank_rejected_not_ready", slog.Uint64("request_id", req.RequestID))
		e.emit(ctx, StatusEvent{Message: errors.NotReadyError().Message})
		return
	}

	docs := req.Documents
	n := min(e.cfg.Cutoff, len(docs))
	eligible := docs[:n]
	tail := docs[n:]

	scored := make([]Document, 0, n)
	failed := make([]Document, 0)

	for i := range eligible {
		// Yield point: observe newly arrived commands before scoring.
		if !e.yield(ctx, req.RequestID) {
			e.log.Debug("rank_superseded",
				slog.Uint64("request_id", req.RequestID),
				slog.Int("scored", i))
			return
		}

		doc := eligible[i]
		score, err := e.handle.Score(ctx, req.Query, doc.ScoreText())
		if err != nil {
			// Per-document failure: keep the document unscored at the
			// end of the scored segment and continue.
			e.log.Warn("document_scoring_failed",
				slog.Uint64("request_id", req.RequestID),
				slog.String("doc_id", doc.ID),
				slog.String("error", err.Error()))
			failed = append(failed, doc)
		} else {
			doc.RerankScore = &score
			scored = insertByScore(scored, doc)
		}

		e.emit(ctx, RankUpdateEvent{
			RequestID: req.RequestID,
			Documents: assemble(scored, failed, eligible[i+1:], tail),
		})
	}

	// Final staleness check so a request superseded during its last scoring
	// call never emits a terminal snapshot.
	if !e.yield(ctx, req.RequestID) {
		return
	}

	e.log.Debug("rank_complete",
		slog.Uint64("request_id", req.RequestID),
		slog.Int("scored", len(scored)),
		slog.Int("failed", len(failed)),
		slog.Int("passthrough", len(tail)))
	e.emit(ctx, RankCompleteEvent{
		RequestID: req.RequestID,
		Documents: assemble(scored, failed, nil, tail),
	})
}

// yield is the explicit suspension point: it drains any queued commands and
// reports whether the given request is still the latest. Cancellation latency
// is bounded by the distance between yield points: at most one scoring call
// completes after supersession.
func (e *Engine) yield(ctx context.Context, id uint64) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd := <-e.commands:
			e.dispatch(ctx, cmd)
		default:
			return e.latest == id
		}
	}
}

// emit delivers one event, honoring context cancellation.
func (e *Engine) emit(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

// insertByScore adds doc to the scored segment and restores descending score
// order. The stable sort preserves original relative order for equal scores.
func insertByScore(scored []Document, doc Document) []Document {
	scored = append(scored, doc)
	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].RerankScore > *scored[j].RerankScore
	})
	return scored
}

// assemble builds one snapshot: scored, then failed, then remaining, then
// tail. The result is a fresh slice so emitted snapshots never alias engine
// state.
func assemble(scored, failed, remaining, tail []Document) []Document {
	out := make([]Document, 0, len(scored)+len(failed)+len(remaining)+len(tail))
	out = append(out, scored...)
	out = append(out, failed...)
	out = append(out, remaining...)
	out = append(out, tail...)
	return out
}
