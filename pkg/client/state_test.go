package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"canvas-notes-backend/pkg/client"
)

// fakeAPI is a scriptable GraphQL endpoint. It dispatches on the
// operation name inside the query string and records what it saw.
type fakeAPI struct {
	mu sync.Mutex

	canvas client.Canvas

	failUpdatePosition   bool
	failCreateConnection bool
	failDeleteConnection bool
	undoResult           bool

	// gate, when set, holds mutations until it is closed so tests can
	// observe the optimistic state before reconciliation lands.
	gate chan struct{}

	positionUpdates []client.Position
	deleteCalls     int
	fetchCalls      int
	undoCalls       int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.Contains(req.Query, "updateBlockPosition"):
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failUpdatePosition {
			writeErrors(w, "block not found or not accessible", "NOT_FOUND")
			return
		}
		pos := req.Variables["position"].(map[string]interface{})
		f.positionUpdates = append(f.positionUpdates, client.Position{
			X: pos["x"].(float64),
			Y: pos["y"].(float64),
		})
		writeData(w, map[string]interface{}{
			"updateBlockPosition": map[string]interface{}{"id": req.Variables["blockId"]},
		})

	case strings.Contains(req.Query, "createConnection"):
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCreateConnection {
			writeErrors(w, "source or target block does not exist on this canvas", "BAD_USER_INPUT")
			return
		}
		writeData(w, map[string]interface{}{
			"createConnection": map[string]interface{}{
				"id":            "conn-real",
				"canvasId":      req.Variables["canvasId"],
				"sourceBlockId": req.Variables["sourceBlockId"],
				"targetBlockId": req.Variables["targetBlockId"],
				"sourceHandle":  req.Variables["sourceHandle"],
				"targetHandle":  req.Variables["targetHandle"],
			},
		})

	case strings.Contains(req.Query, "deleteConnection"):
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleteCalls++
		if f.failDeleteConnection {
			writeErrors(w, "connection not found or not accessible", "NOT_FOUND")
			return
		}
		writeData(w, map[string]interface{}{"deleteConnection": true})

	case strings.Contains(req.Query, "undoBlockCreation"):
		f.mu.Lock()
		defer f.mu.Unlock()
		f.undoCalls++
		writeData(w, map[string]interface{}{"undoBlockCreation": f.undoResult})

	case strings.Contains(req.Query, "createBlock"):
		f.mu.Lock()
		defer f.mu.Unlock()
		pos := req.Variables["position"].(map[string]interface{})
		writeData(w, map[string]interface{}{
			"createBlock": map[string]interface{}{
				"id":       "block-new",
				"canvasId": req.Variables["canvasId"],
				"type":     req.Variables["type"],
				"content":  req.Variables["content"],
				"position": pos,
				"notes":    "",
			},
		})

	default: // canvas fetch
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fetchCalls++
		writeData(w, map[string]interface{}{"canvas": f.canvas})
	}
}

func writeData(w http.ResponseWriter, data map[string]interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeErrors(w http.ResponseWriter, message, code string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{{
			"message":    message,
			"extensions": map[string]interface{}{"code": code},
		}},
	})
}

func baseCanvas() client.Canvas {
	return client.Canvas{
		ID:    "canvas-1",
		Title: "Test",
		Blocks: []client.Block{
			{
				ID:       "block-a",
				CanvasID: "canvas-1",
				Type:     "text",
				Content:  map[string]interface{}{"text": "alpha"},
				Position: client.Position{X: 0, Y: 0},
			},
			{
				ID:       "block-b",
				CanvasID: "canvas-1",
				Type:     "link",
				Content:  map[string]interface{}{"url": "https://example.com"},
				Position: client.Position{X: 100, Y: 100},
			},
		},
		Connections: []client.Connection{
			{
				ID:            "conn-1",
				CanvasID:      "canvas-1",
				SourceBlockID: "block-a",
				TargetBlockID: "block-b",
			},
		},
	}
}

func newState(t *testing.T, api *fakeAPI, opts ...client.StateOption) *client.CanvasState {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	c := client.NewClient(server.URL, "test-token")
	state := client.NewCanvasState(c, "canvas-1", opts...)
	t.Cleanup(state.Close)

	if err := state.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return state
}

// ─────────────────────────────────────────────────────────────
// Projection
// ─────────────────────────────────────────────────────────────

func TestLoad_BuildsProjection(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas()}
	state := newState(t, api)

	nodes := state.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}

	a, ok := state.Node("block-a")
	if !ok {
		t.Fatal("block-a missing")
	}
	if a.Label != "alpha" {
		t.Errorf("text block label should come from content, got %q", a.Label)
	}

	b, _ := state.Node("block-b")
	if b.Label != "https://example.com" {
		t.Errorf("link block label should be the url, got %q", b.Label)
	}

	edges := state.Edges()
	if len(edges) != 1 || edges[0].ID != "conn-1" {
		t.Fatalf("expected edge conn-1, got %v", edges)
	}
}

// ─────────────────────────────────────────────────────────────
// Drag
// ─────────────────────────────────────────────────────────────

func TestEndDrag_BelowThresholdNotPersisted(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas()}
	state := newState(t, api)

	state.BeginDrag("block-a")
	state.Drag("block-a", client.Position{X: 1, Y: 1})
	state.EndDrag("block-a")
	state.Flush()

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.positionUpdates) != 0 {
		t.Errorf("sub-threshold drag must not reach the server, got %v", api.positionUpdates)
	}

	// The local position still reflects the nudge.
	n, _ := state.Node("block-a")
	if n.Position.X != 1 || n.Position.Y != 1 {
		t.Errorf("local position should keep the nudge, got %+v", n.Position)
	}
}

func TestEndDrag_AboveThresholdPersisted(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas()}
	state := newState(t, api)

	state.BeginDrag("block-a")
	state.Drag("block-a", client.Position{X: 50, Y: 60})
	state.EndDrag("block-a")
	state.Flush()

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.positionUpdates) != 1 {
		t.Fatalf("expected 1 position update, got %d", len(api.positionUpdates))
	}
	if api.positionUpdates[0].X != 50 || api.positionUpdates[0].Y != 60 {
		t.Errorf("wrong position persisted: %+v", api.positionUpdates[0])
	}
}

func TestEndDrag_FailureKeepsLocalPosition(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), failUpdatePosition: true}

	var mu sync.Mutex
	var notified []error
	state := newState(t, api, client.WithNotifier(func(err error) {
		mu.Lock()
		notified = append(notified, err)
		mu.Unlock()
	}))

	state.BeginDrag("block-a")
	state.Drag("block-a", client.Position{X: 50, Y: 60})
	state.EndDrag("block-a")
	state.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notified))
	}

	// No rollback: the node keeps its dragged position.
	n, _ := state.Node("block-a")
	if n.Position.X != 50 || n.Position.Y != 60 {
		t.Errorf("failure must not roll back the drag, got %+v", n.Position)
	}
}

// ─────────────────────────────────────────────────────────────
// Connections
// ─────────────────────────────────────────────────────────────

func TestConnectBlocks_OptimisticThenReconciled(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), gate: make(chan struct{})}
	state := newState(t, api)

	tempID := state.ConnectBlocks("block-a", "block-b", "right", "left")

	// Before the server answers, the temp edge is already visible.
	found := false
	for _, e := range state.Edges() {
		if e.ID == tempID {
			found = true
		}
	}
	if !found {
		t.Fatal("optimistic edge not visible before reconciliation")
	}

	close(api.gate)
	state.Flush()

	var ids []string
	for _, e := range state.Edges() {
		ids = append(ids, e.ID)
	}
	for _, id := range ids {
		if id == tempID {
			t.Errorf("temp id should be swapped out, have %v", ids)
		}
	}
	foundReal := false
	for _, id := range ids {
		if id == "conn-real" {
			foundReal = true
		}
	}
	if !foundReal {
		t.Errorf("expected server id conn-real, have %v", ids)
	}
}

func TestConnectBlocks_FailureRefetches(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), failCreateConnection: true}

	var mu sync.Mutex
	var notified []error
	state := newState(t, api, client.WithNotifier(func(err error) {
		mu.Lock()
		notified = append(notified, err)
		mu.Unlock()
	}))

	api.mu.Lock()
	fetchesBefore := api.fetchCalls
	api.mu.Unlock()

	state.ConnectBlocks("block-a", "block-ghost", "", "")
	state.Flush()

	mu.Lock()
	if len(notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notified))
	}
	mu.Unlock()

	// The projection was refetched and the temp edge discarded.
	api.mu.Lock()
	if api.fetchCalls != fetchesBefore+1 {
		t.Errorf("expected one refetch, got %d", api.fetchCalls-fetchesBefore)
	}
	api.mu.Unlock()

	edges := state.Edges()
	if len(edges) != 1 || edges[0].ID != "conn-1" {
		t.Errorf("projection should match the server again, got %v", edges)
	}
}

func TestRemoveEdge_SuccessRefetchesAnyway(t *testing.T) {
	canvas := baseCanvas()
	canvas.Connections = nil // the server view after the delete
	api := &fakeAPI{canvas: baseCanvas()}
	state := newState(t, api)

	api.mu.Lock()
	api.canvas = canvas
	fetchesBefore := api.fetchCalls
	api.mu.Unlock()

	state.RemoveEdge("conn-1")

	// Optimistic removal is immediate.
	if len(state.Edges()) != 0 {
		t.Error("edge should disappear before the server answers")
	}

	state.Flush()

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.deleteCalls != 1 {
		t.Errorf("expected 1 delete call, got %d", api.deleteCalls)
	}
	if api.fetchCalls != fetchesBefore+1 {
		t.Errorf("delete must always refetch, got %d extra fetches", api.fetchCalls-fetchesBefore)
	}
}

func TestRemoveEdge_FailureRestoresSnapshot(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), failDeleteConnection: true}

	var mu sync.Mutex
	var notified []error
	state := newState(t, api, client.WithNotifier(func(err error) {
		mu.Lock()
		notified = append(notified, err)
		mu.Unlock()
	}))

	state.RemoveEdge("conn-1")
	state.Flush()

	mu.Lock()
	if len(notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notified))
	}
	gqlErr, ok := notified[0].(*client.GraphQLError)
	if !ok || gqlErr.Code() != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND GraphQL error, got %v", notified[0])
	}
	mu.Unlock()

	// Restored from snapshot, then confirmed by the refetch.
	edges := state.Edges()
	if len(edges) != 1 || edges[0].ID != "conn-1" {
		t.Errorf("edge should be restored after failed delete, got %v", edges)
	}
}

// ─────────────────────────────────────────────────────────────
// Block create / undo affordance
// ─────────────────────────────────────────────────────────────

func TestAddBlock_NotOptimistic(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), undoResult: true}
	state := newState(t, api)

	block, err := state.AddBlock(context.Background(), "text",
		client.Position{X: 5, Y: 5}, map[string]interface{}{"text": "fresh"})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if block.ID != "block-new" {
		t.Fatalf("expected server id, got %q", block.ID)
	}

	n, ok := state.Node("block-new")
	if !ok {
		t.Fatal("confirmed block should appear as a node")
	}
	if n.Label != "fresh" {
		t.Errorf("expected label from content, got %q", n.Label)
	}

	if !state.CanUndo() {
		t.Error("undo affordance should be live right after create")
	}
}

func TestUndoLastBlock(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), undoResult: true}
	state := newState(t, api)

	if _, err := state.AddBlock(context.Background(), "text", client.Position{}, nil); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	undone, err := state.UndoLastBlock(context.Background())
	if err != nil {
		t.Fatalf("UndoLastBlock: %v", err)
	}
	if !undone {
		t.Fatal("expected undo to succeed")
	}
	if _, ok := state.Node("block-new"); ok {
		t.Error("undone block should leave the projection")
	}
	if state.CanUndo() {
		t.Error("affordance should be consumed")
	}
}

func TestUndoAffordance_Expires(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), undoResult: true}
	state := newState(t, api, client.WithUndoAffordance(20*time.Millisecond))

	if _, err := state.AddBlock(context.Background(), "text", client.Position{}, nil); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for state.CanUndo() {
		if time.Now().After(deadline) {
			t.Fatal("affordance never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	undone, err := state.UndoLastBlock(context.Background())
	if err != nil {
		t.Fatalf("UndoLastBlock: %v", err)
	}
	if undone {
		t.Error("expired affordance must not undo")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.undoCalls != 0 {
		t.Errorf("expired affordance must not reach the server, got %d calls", api.undoCalls)
	}
}

func TestAddBlock_SupersedesPreviousAffordance(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), undoResult: true}
	state := newState(t, api)

	if _, err := state.AddBlock(context.Background(), "text", client.Position{}, nil); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if _, err := state.AddBlock(context.Background(), "text", client.Position{}, nil); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	// Only the latest create is undoable; one undo consumes it.
	undone, err := state.UndoLastBlock(context.Background())
	if err != nil || !undone {
		t.Fatalf("first undo: got (%v, %v)", undone, err)
	}
	undone, err = state.UndoLastBlock(context.Background())
	if err != nil || undone {
		t.Fatalf("second undo: expected (false, nil), got (%v, %v)", undone, err)
	}
}

// ─────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────

func TestClose_AbortsInFlightRequests(t *testing.T) {
	api := &fakeAPI{canvas: baseCanvas(), gate: make(chan struct{})}

	var mu sync.Mutex
	var notified []error
	state := newState(t, api, client.WithNotifier(func(err error) {
		mu.Lock()
		notified = append(notified, err)
		mu.Unlock()
	}))

	state.BeginDrag("block-a")
	state.Drag("block-a", client.Position{X: 50, Y: 60})
	state.EndDrag("block-a")

	// The server is holding the position update. Close must abort the
	// request rather than wait for the server to answer.
	state.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notified))
	}
	if !errors.Is(notified[0], context.Canceled) {
		t.Errorf("expected a cancellation error, got %v", notified[0])
	}

	// Release the held handler so the server shuts down cleanly.
	close(api.gate)
}
