package client

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDragThreshold is the displacement below which a drag-end is
// treated as an accidental nudge and never persisted.
const DefaultDragThreshold = 3.0

// DefaultUndoAffordance is how long the undo affordance stays live
// after a block create. It sits one second under the server's grace
// window so a click at the last moment still lands inside it.
const DefaultUndoAffordance = 29 * time.Second

// Node is the local projection of a block.
type Node struct {
	ID       string
	Position Position
	Label    string
}

// Edge is the local projection of a connection.
type Edge struct {
	ID            string
	SourceBlockID string
	TargetBlockID string
	SourceHandle  string
	TargetHandle  string
}

// Notifier receives errors from background reconciliation. It may be
// called from arbitrary goroutines.
type Notifier func(err error)

// CanvasState keeps a local graph projection of one canvas and
// reconciles optimistic mutations against the server.
type CanvasState struct {
	client   *Client
	canvasID string

	mu    sync.Mutex
	nodes map[string]*Node
	edges map[string]*Edge

	dragStart map[string]Position

	undoBlockID string
	undoTimer   *time.Timer

	notify        Notifier
	dragThreshold float64
	affordance    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StateOption customizes a CanvasState.
type StateOption func(*CanvasState)

// WithNotifier sets the callback for background reconciliation errors.
func WithNotifier(n Notifier) StateOption {
	return func(s *CanvasState) { s.notify = n }
}

// WithDragThreshold overrides the drag displacement threshold.
func WithDragThreshold(px float64) StateOption {
	return func(s *CanvasState) { s.dragThreshold = px }
}

// WithUndoAffordance overrides how long the undo affordance stays live.
func WithUndoAffordance(d time.Duration) StateOption {
	return func(s *CanvasState) { s.affordance = d }
}

// NewCanvasState creates an empty state bound to one canvas. Call Load
// to populate it.
func NewCanvasState(c *Client, canvasID string, opts ...StateOption) *CanvasState {
	ctx, cancel := context.WithCancel(context.Background())
	s := &CanvasState{
		client:        c,
		canvasID:      canvasID,
		nodes:         make(map[string]*Node),
		edges:         make(map[string]*Edge),
		dragStart:     make(map[string]Position),
		notify:        func(error) {},
		dragThreshold: DefaultDragThreshold,
		affordance:    DefaultUndoAffordance,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the canvas graph and replaces the local projection.
func (s *CanvasState) Load(ctx context.Context) error {
	canvas, err := s.client.FetchCanvas(ctx, s.canvasID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(canvas)
	return nil
}

// replaceLocked rebuilds nodes and edges from a fetched canvas.
// Caller holds s.mu.
func (s *CanvasState) replaceLocked(canvas *Canvas) {
	s.nodes = make(map[string]*Node, len(canvas.Blocks))
	for _, b := range canvas.Blocks {
		s.nodes[b.ID] = &Node{
			ID:       b.ID,
			Position: b.Position,
			Label:    blockLabel(b.Type, b.Content),
		}
	}
	s.edges = make(map[string]*Edge, len(canvas.Connections))
	for _, c := range canvas.Connections {
		s.edges[c.ID] = &Edge{
			ID:            c.ID,
			SourceBlockID: c.SourceBlockID,
			TargetBlockID: c.TargetBlockID,
			SourceHandle:  c.SourceHandle,
			TargetHandle:  c.TargetHandle,
		}
	}
}

// blockLabel derives a display label from the typed content union.
func blockLabel(blockType string, content map[string]interface{}) string {
	switch blockType {
	case "text":
		if text, ok := content["text"].(string); ok && text != "" {
			return text
		}
	case "link":
		if url, ok := content["url"].(string); ok && url != "" {
			return url
		}
	}
	return blockType
}

// Nodes returns a snapshot of the current nodes.
func (s *CanvasState) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	return out
}

// Edges returns a snapshot of the current edges.
func (s *CanvasState) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	return out
}

// Node returns one node by id.
func (s *CanvasState) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// BeginDrag records the starting position of a drag gesture.
func (s *CanvasState) BeginDrag(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[nodeID]; ok {
		s.dragStart[nodeID] = n.Position
	}
}

// Drag moves a node locally. Nothing is persisted until EndDrag.
func (s *CanvasState) Drag(nodeID string, pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[nodeID]; ok {
		n.Position = pos
	}
}

// EndDrag finishes a drag gesture. When the total displacement exceeds
// the threshold the new position is persisted fire-and-forget: the
// local position stands either way, and a failure only reaches the
// notifier.
func (s *CanvasState) EndDrag(nodeID string) {
	s.mu.Lock()
	start, started := s.dragStart[nodeID]
	delete(s.dragStart, nodeID)
	n, ok := s.nodes[nodeID]
	if !ok || !started {
		s.mu.Unlock()
		return
	}
	pos := n.Position
	s.mu.Unlock()

	if math.Hypot(pos.X-start.X, pos.Y-start.Y) <= s.dragThreshold {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.UpdateBlockPosition(s.ctx, nodeID, pos); err != nil {
			s.notify(err)
		}
	}()
}

// ConnectBlocks adds an edge optimistically under a temporary id and
// reconciles in the background. On success the temporary id is swapped
// for the server's; on failure the whole projection is refetched.
func (s *CanvasState) ConnectBlocks(sourceID, targetID, sourceHandle, targetHandle string) string {
	tempID := "tmp-" + uuid.New().String()

	s.mu.Lock()
	s.edges[tempID] = &Edge{
		ID:            tempID,
		SourceBlockID: sourceID,
		TargetBlockID: targetID,
		SourceHandle:  sourceHandle,
		TargetHandle:  targetHandle,
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := s.client.CreateConnection(s.ctx, s.canvasID, sourceID, targetID, sourceHandle, targetHandle)
		if err != nil {
			s.notify(err)
			s.refetch()
			return
		}

		s.mu.Lock()
		if _, ok := s.edges[tempID]; ok {
			delete(s.edges, tempID)
			s.edges[conn.ID] = &Edge{
				ID:            conn.ID,
				SourceBlockID: conn.SourceBlockID,
				TargetBlockID: conn.TargetBlockID,
				SourceHandle:  conn.SourceHandle,
				TargetHandle:  conn.TargetHandle,
			}
		}
		s.mu.Unlock()
	}()

	return tempID
}

// RemoveEdge removes an edge optimistically. On failure the snapshot
// is restored; the projection is refetched afterwards in both cases so
// concurrent edits converge.
func (s *CanvasState) RemoveEdge(edgeID string) {
	s.mu.Lock()
	snapshot, ok := s.edges[edgeID]
	if !ok {
		s.mu.Unlock()
		return
	}
	saved := *snapshot
	delete(s.edges, edgeID)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.DeleteConnection(s.ctx, edgeID); err != nil {
			s.notify(err)
			s.mu.Lock()
			restored := saved
			s.edges[saved.ID] = &restored
			s.mu.Unlock()
		}
		s.refetch()
	}()
}

// AddBlock creates a block. Block creation is not optimistic: the node
// appears only once the server confirms. The returned block stays
// undoable via UndoLastBlock until the affordance expires.
func (s *CanvasState) AddBlock(ctx context.Context, blockType string, pos Position, content map[string]interface{}) (*Block, error) {
	block, err := s.client.CreateBlock(ctx, s.canvasID, blockType, pos, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nodes[block.ID] = &Node{
		ID:       block.ID,
		Position: block.Position,
		Label:    blockLabel(block.Type, block.Content),
	}
	if s.undoTimer != nil {
		s.undoTimer.Stop()
	}
	s.undoBlockID = block.ID
	s.undoTimer = time.AfterFunc(s.affordance, func() {
		s.mu.Lock()
		if s.undoBlockID == block.ID {
			s.undoBlockID = ""
			s.undoTimer = nil
		}
		s.mu.Unlock()
	})
	s.mu.Unlock()

	return block, nil
}

// CanUndo reports whether the last created block is still undoable.
func (s *CanvasState) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undoBlockID != ""
}

// UndoLastBlock retracts the most recently created block while the
// affordance is live. The server owns the real grace window; a false
// result means the window closed or the block is already gone.
func (s *CanvasState) UndoLastBlock(ctx context.Context) (bool, error) {
	s.mu.Lock()
	blockID := s.undoBlockID
	if blockID == "" {
		s.mu.Unlock()
		return false, nil
	}
	s.undoBlockID = ""
	if s.undoTimer != nil {
		s.undoTimer.Stop()
		s.undoTimer = nil
	}
	s.mu.Unlock()

	undone, err := s.client.UndoBlockCreation(ctx, blockID)
	if err != nil {
		return false, err
	}
	if undone {
		s.mu.Lock()
		delete(s.nodes, blockID)
		s.mu.Unlock()
	}
	return undone, nil
}

// refetch replaces the local projection with the server's view.
// Errors are reported through the notifier only.
func (s *CanvasState) refetch() {
	canvas, err := s.client.FetchCanvas(s.ctx, s.canvasID)
	if err != nil {
		s.notify(err)
		return
	}
	s.mu.Lock()
	s.replaceLocked(canvas)
	s.mu.Unlock()
}

// Flush waits for background reconciliation to settle. Mostly useful
// in tests and during shutdown.
func (s *CanvasState) Flush() {
	s.wg.Wait()
}

// Close cancels in-flight requests and stops timers. The state must
// not be used afterwards.
func (s *CanvasState) Close() {
	s.cancel()
	s.mu.Lock()
	if s.undoTimer != nil {
		s.undoTimer.Stop()
		s.undoTimer = nil
	}
	s.undoBlockID = ""
	s.mu.Unlock()
	s.wg.Wait()
}
