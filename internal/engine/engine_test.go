package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/knowbase/rerankd/internal/errors"
	"github.com/knowbase/rerankd/internal/model"
	"github.com/knowbase/rerankd/internal/scorer"
)

// stubHandle scores documents by looking up their combined text. An optional
// token channel gates each call so tests can control interleaving.
type stubHandle struct {
	fn     func(query, text string) (float64, error)
	tokens chan struct{}
}

func (h *stubHandle) Score(ctx context.Context, query, text string) (float64, error) {
	if h.tokens != nil {
		select {
		case <-h.tokens:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return h.fn(query, text)
}

func (h *stubHandle) ModelName() string { return "stub-model" }
func (h *stubHandle) Close() error      { return nil }

func scoreByTitle(scores map[string]float64) func(string, string) (float64, error) {
	return func(_, text string) (float64, error) {
		score, ok := scores[text]
		if !ok {
			return 0, errors.New("no score for " + text)
		}
		return score, nil
	}
}

// stubLoader hands out a fixed handle, counting invocations.
type stubLoader struct {
	handle scorer.Handle
	err    error
	calls  int
}

func (l *stubLoader) Load(_ context.Context, status model.StatusFunc) (scorer.Handle, error) {
	l.calls++
	if status != nil {
		status("fetching config.json")
		status("fetching model_quantized.onnx")
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

func titleDoc(title string) Document {
	return Document{ID: "https://example.com/" + title, Title: title}
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

// collectRequest drains events until the terminal event for requestID.
func collectRequest(t *testing.T, events <-chan Event, requestID uint64) []Event {
	t.Helper()
	var out []Event
	for {
		ev := next(t, events)
		out = append(out, ev)
		if c, ok := ev.(RankCompleteEvent); ok && c.RequestID == requestID {
			return out
		}
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func startEngine(t *testing.T, cfg Config, loader Loader) *Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e := New(cfg, loader)
	go func() { _ = e.Run(ctx) }()
	return e
}

func TestEngine_RankBeforeLoad_IsRejectedWithStatus(t *testing.T) {
	// Given: an engine that has never loaded
	e := startEngine(t, Config{}, &stubLoader{handle: &stubHandle{}})

	// When: a rank command arrives before the model is ready
	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1,
		Query:     "neural search",
		Documents: []Document{titleDoc("a")},
	}))

	// Then: the request is ignored with a status notification, no scoring
	ev := next(t, e.Events())
	status, ok := ev.(StatusEvent)
	require.True(t, ok, "expected StatusEvent, got %T", ev)
	assert.Contains(t, status.Message, "not loaded")

	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event after not-ready rejection: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_Load_EmitsProgressThenReady(t *testing.T) {
	loader := &stubLoader{handle: &stubHandle{}}
	e := startEngine(t, Config{}, loader)

	require.NoError(t, e.Submit(context.Background(), LoadCommand{}))

	// Status events name the assets being fetched, then readiness.
	s1 := next(t, e.Events()).(StatusEvent)
	assert.Equal(t, "fetching config.json", s1.Message)
	s2 := next(t, e.Events()).(StatusEvent)
	assert.Equal(t, "fetching model_quantized.onnx", s2.Message)
	ready := next(t, e.Events()).(ModelReadyEvent)
	assert.Equal(t, "stub-model", ready.Model)
}

func TestEngine_Load_Idempotent(t *testing.T) {
	// Given: a loaded engine
	loader := &stubLoader{handle: &stubHandle{}}
	e := startEngine(t, Config{}, loader)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, LoadCommand{}))
	next(t, e.Events()) // status
	next(t, e.Events()) // status
	next(t, e.Events()) // ready

	// When: loading again
	require.NoError(t, e.Submit(ctx, LoadCommand{}))

	// Then: readiness is reported immediately with no refetch
	ev := next(t, e.Events())
	_, ok := ev.(ModelReadyEvent)
	require.True(t, ok, "expected immediate ModelReadyEvent, got %#v", ev)
	assert.Equal(t, 1, loader.calls)
}

func TestEngine_LoadFailure_EmitsErrorAndAllowsRetry(t *testing.T) {
	// Given: a loader that fails once
	loader := &stubLoader{
		handle: &stubHandle{},
		err:    enginerrors.AssetFetchError("model_quantized.onnx", errors.New("timeout")),
	}
	e := startEngine(t, Config{}, loader)
	ctx := context.Background()

	require.NoError(t, e.Submit(ctx, LoadCommand{}))
	next(t, e.Events()) // status
	next(t, e.Events()) // status

	errEv := next(t, e.Events()).(ErrorEvent)
	assert.Equal(t, enginerrors.ErrCodeAssetFetch, errEv.Code)

	// When: the host retries the whole load command after the fault clears
	loader.err = nil
	require.NoError(t, e.Submit(ctx, LoadCommand{}))
	next(t, e.Events()) // status
	next(t, e.Events()) // status

	// Then: the engine reaches ready
	_, ok := next(t, e.Events()).(ModelReadyEvent)
	assert.True(t, ok)
	assert.Equal(t, 2, loader.calls)
}

func loadedEngine(t *testing.T, cutoff int, handle scorer.Handle) *Engine {
	t.Helper()
	e := startEngine(t, Config{Cutoff: cutoff}, &stubLoader{handle: handle})
	require.NoError(t, e.Submit(context.Background(), LoadCommand{}))
	next(t, e.Events()) // status
	next(t, e.Events()) // status
	next(t, e.Events()) // ready
	return e
}

func TestEngine_Rank_SnapshotSequence(t *testing.T) {
	// Given: candidates D1,D2,D3 with cutoff N=2 and scores D1=0.2, D2=0.9
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{"d1": 0.2, "d2": 0.9})}
	e := loadedEngine(t, 2, handle)

	docs := []Document{titleDoc("d1"), titleDoc("d2"), titleDoc("d3")}
	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: docs,
	}))

	// After D1: [D1(0.2), D2(pending), D3(pass-through)]
	up1 := next(t, e.Events()).(RankUpdateEvent)
	require.Equal(t, uint64(1), up1.RequestID)
	require.Equal(t, []string{docs[0].ID, docs[1].ID, docs[2].ID}, ids(up1.Documents))
	require.NotNil(t, up1.Documents[0].RerankScore)
	assert.InDelta(t, 0.2, *up1.Documents[0].RerankScore, 1e-9)
	assert.Nil(t, up1.Documents[1].RerankScore)
	assert.Nil(t, up1.Documents[2].RerankScore)

	// After D2: [D2(0.9), D1(0.2), D3(pass-through)]
	up2 := next(t, e.Events()).(RankUpdateEvent)
	require.Equal(t, []string{docs[1].ID, docs[0].ID, docs[2].ID}, ids(up2.Documents))
	assert.InDelta(t, 0.9, *up2.Documents[0].RerankScore, 1e-9)
	assert.InDelta(t, 0.2, *up2.Documents[1].RerankScore, 1e-9)

	// Terminal: same order, tagged complete.
	done := next(t, e.Events()).(RankCompleteEvent)
	assert.Equal(t, uint64(1), done.RequestID)
	assert.Equal(t, []string{docs[1].ID, docs[0].ID, docs[2].ID}, ids(done.Documents))
	assert.Nil(t, done.Documents[2].RerankScore, "pass-through tail never receives a score")
}

func TestEngine_Rank_EverySnapshotPreservesMultisetAndTail(t *testing.T) {
	// Given: five candidates with cutoff 3
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{
		"a": 0.5, "b": 0.1, "c": 0.8,
	})}
	e := loadedEngine(t, 3, handle)

	docs := []Document{titleDoc("a"), titleDoc("b"), titleDoc("c"), titleDoc("d"), titleDoc("e")}
	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: docs,
	}))

	want := sortedCopy(ids(docs))
	for _, ev := range collectRequest(t, e.Events(), 1) {
		var snapshot []Document
		switch v := ev.(type) {
		case RankUpdateEvent:
			snapshot = v.Documents
		case RankCompleteEvent:
			snapshot = v.Documents
		default:
			continue
		}

		// No document created, dropped, or duplicated.
		assert.Equal(t, want, sortedCopy(ids(snapshot)))

		// Documents beyond the cutoff keep their relative order, unscored.
		n := len(snapshot)
		assert.Equal(t, docs[3].ID, snapshot[n-2].ID)
		assert.Equal(t, docs[4].ID, snapshot[n-1].ID)
		assert.Nil(t, snapshot[n-2].RerankScore)
		assert.Nil(t, snapshot[n-1].RerankScore)
	}
}

func TestEngine_Rank_TiesKeepOriginalOrder(t *testing.T) {
	// Given: three candidates scoring identically
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{
		"x": 0.7, "y": 0.7, "z": 0.7,
	})}
	e := loadedEngine(t, 3, handle)

	docs := []Document{titleDoc("x"), titleDoc("y"), titleDoc("z")}
	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: docs,
	}))

	events := collectRequest(t, e.Events(), 1)
	done := events[len(events)-1].(RankCompleteEvent)

	// Stable sort: ties resolve to original relative order.
	assert.Equal(t, ids(docs), ids(done.Documents))
}

func TestEngine_Rank_ScoringFailureKeepsDocumentAndCompletes(t *testing.T) {
	// Given: the similarity capability fails for D2 only
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{"d1": 0.4, "d3": 0.6})}
	e := loadedEngine(t, 3, handle)

	docs := []Document{titleDoc("d1"), titleDoc("d2"), titleDoc("d3")}
	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: docs,
	}))

	events := collectRequest(t, e.Events(), 1)

	// The snapshot after D2 keeps it unscored at the end of the scored segment.
	up2 := events[1].(RankUpdateEvent)
	require.Equal(t, []string{docs[0].ID, docs[1].ID, docs[2].ID}, ids(up2.Documents))
	assert.NotNil(t, up2.Documents[0].RerankScore)
	assert.Nil(t, up2.Documents[1].RerankScore)

	// The terminal event is still emitted: no request-level failure.
	done := events[len(events)-1].(RankCompleteEvent)
	require.Equal(t, []string{docs[2].ID, docs[0].ID, docs[1].ID}, ids(done.Documents))
	assert.Nil(t, done.Documents[2].RerankScore)

	// And: no ErrorEvent was emitted for the per-document failure.
	for _, ev := range events {
		_, isErr := ev.(ErrorEvent)
		assert.False(t, isErr, "per-document failures must not surface as error events")
	}
}

func TestEngine_Supersession_QueuedRequestWinsSilently(t *testing.T) {
	// Given: load and two rank commands queued before the engine runs
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{"a": 0.3, "b": 0.6})}
	e := New(Config{Cutoff: 2}, &stubLoader{handle: handle})

	docs := []Document{titleDoc("a"), titleDoc("b")}
	e.Commands() <- LoadCommand{}
	e.Commands() <- RankCommand{RequestID: 1, Query: "q", Documents: docs}
	e.Commands() <- RankCommand{RequestID: 2, Query: "q", Documents: docs}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = e.Run(ctx) }()

	events := collectRequest(t, e.Events(), 2)

	// Then: request 1 observed its supersession at the first yield point
	// and emitted nothing at all.
	for _, ev := range events {
		switch v := ev.(type) {
		case RankUpdateEvent:
			assert.Equal(t, uint64(2), v.RequestID)
		case RankCompleteEvent:
			assert.Equal(t, uint64(2), v.RequestID)
		}
	}
}

func TestEngine_Supersession_MidFlightStopsOlderRequest(t *testing.T) {
	// Given: a gated scorer so the test controls when each score lands
	tokens := make(chan struct{}, 16)
	handle := &stubHandle{
		fn:     scoreByTitle(map[string]float64{"a": 0.1, "b": 0.2, "c": 0.3}),
		tokens: tokens,
	}
	e := loadedEngine(t, 3, handle)
	ctx := context.Background()

	docs := []Document{titleDoc("a"), titleDoc("b"), titleDoc("c")}
	require.NoError(t, e.Submit(ctx, RankCommand{RequestID: 1, Query: "q", Documents: docs}))

	// When: the first document scores, then a newer request arrives
	tokens <- struct{}{}
	first := next(t, e.Events()).(RankUpdateEvent)
	require.Equal(t, uint64(1), first.RequestID)

	require.NoError(t, e.Submit(ctx, RankCommand{RequestID: 2, Query: "q", Documents: docs}))
	for i := 0; i < 8; i++ {
		tokens <- struct{}{}
	}

	// Then: request 1 never completes; at most one more in-flight update
	// bears its id, and none after request 2 starts emitting.
	events := collectRequest(t, e.Events(), 2)
	seenR2 := false
	staleUpdates := 0
	for _, ev := range events {
		switch v := ev.(type) {
		case RankUpdateEvent:
			if v.RequestID == 2 {
				seenR2 = true
			} else {
				assert.False(t, seenR2, "stale request emitted after its successor started")
				staleUpdates++
			}
		case RankCompleteEvent:
			assert.Equal(t, uint64(2), v.RequestID, "superseded request must never complete")
		}
	}
	assert.LessOrEqual(t, staleUpdates, 1, "at most one in-flight snapshot after supersession")
}

func TestEngine_CutoffLargerThanCandidates(t *testing.T) {
	handle := &stubHandle{fn: scoreByTitle(map[string]float64{"a": 0.9})}
	e := loadedEngine(t, 30, handle)

	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: []Document{titleDoc("a")},
	}))

	events := collectRequest(t, e.Events(), 1)
	done := events[len(events)-1].(RankCompleteEvent)
	require.Len(t, done.Documents, 1)
	assert.NotNil(t, done.Documents[0].RerankScore)
}

func TestEngine_EmptyCandidateList(t *testing.T) {
	handle := &stubHandle{fn: scoreByTitle(nil)}
	e := loadedEngine(t, 10, handle)

	require.NoError(t, e.Submit(context.Background(), RankCommand{
		RequestID: 1, Query: "q", Documents: nil,
	}))

	// A request with nothing to score completes immediately.
	done := next(t, e.Events()).(RankCompleteEvent)
	assert.Equal(t, uint64(1), done.RequestID)
	assert.Empty(t, done.Documents)
}

func TestEngine_RunClosesEventsOnCancel(t *testing.T) {
	e := New(Config{}, &stubLoader{handle: &stubHandle{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}

	_, open := <-e.Events()
	assert.False(t, open, "event channel should close when the engine stops")
}
