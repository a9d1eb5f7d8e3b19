package database

import (
	"sync"
	"time"

	"canvas-notes-backend/pkg/models"

	"github.com/google/uuid"
)

// MemoryDatabase is an in-process store with the same contract as the
// external backends. Construct one per run or per test; there is no
// hidden package-level state.
type MemoryDatabase struct {
	mu sync.RWMutex

	canvases    map[string]*models.Canvas
	blocks      map[string]*models.Block
	connections map[string]*models.Connection

	// insertion order, so listings are stable
	canvasOrder     []string
	blockOrder      []string
	connectionOrder []string
}

// NewMemoryDatabase creates an empty in-memory store.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		canvases:    make(map[string]*models.Canvas),
		blocks:      make(map[string]*models.Block),
		connections: make(map[string]*models.Connection),
	}
}

func (db *MemoryDatabase) CreateCanvas(c *models.Canvas) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	db.canvases[c.ID] = &stored
	db.canvasOrder = append(db.canvasOrder, c.ID)
	return nil
}

func (db *MemoryDatabase) GetCanvas(userID, canvasID string) (*models.Canvas, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.canvases[canvasID]
	if !ok || (c.UserID != userID && !c.IsPublic) {
		return nil, ErrNoRows
	}
	out := *c
	return &out, nil
}

func (db *MemoryDatabase) ListUserCanvases(userID string) ([]models.Canvas, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []models.Canvas
	for _, id := range db.canvasOrder {
		if c := db.canvases[id]; c.UserID == userID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (db *MemoryDatabase) UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.canvases[canvasID]
	if !ok || c.UserID != userID {
		return nil, ErrNoRows
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	out := *c
	return &out, nil
}

func (db *MemoryDatabase) CountBlocks(canvasID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	count := 0
	for _, b := range db.blocks {
		if b.CanvasID == canvasID {
			count++
		}
	}
	return count, nil
}

func (db *MemoryDatabase) CreateBlock(b *models.Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.canvases[b.CanvasID]
	if !ok {
		return ErrForeignKey
	}
	// canvas access mirrors the RLS insert policy: owner or public canvas
	if c.UserID != b.UserID && !c.IsPublic {
		return ErrNoRows
	}

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	stored := copyBlock(b)
	db.blocks[b.ID] = stored
	db.blockOrder = append(db.blockOrder, b.ID)
	return nil
}

func (db *MemoryDatabase) GetBlock(userID, blockID string) (*models.Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	b, ok := db.blocks[blockID]
	if !ok || b.UserID != userID {
		return nil, ErrNoRows
	}
	return copyBlock(b), nil
}

func (db *MemoryDatabase) UpdateBlockPartial(userID, blockID string, patch map[string]interface{}) (*models.Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.blocks[blockID]
	if !ok || b.UserID != userID {
		return nil, ErrNoRows
	}

	if x, ok := patch["x"].(float64); ok {
		b.Position.X = x
	}
	if y, ok := patch["y"].(float64); ok {
		b.Position.Y = y
	}
	if content, ok := patch["content"].(map[string]interface{}); ok {
		// copy so later mutation of the caller's map cannot reach the store
		stored := make(map[string]interface{}, len(content))
		for k, v := range content {
			stored[k] = v
		}
		b.Content = stored
	}
	if notes, ok := patch["notes"].(string); ok {
		b.Notes = notes
	}
	b.UpdatedAt = time.Now()
	return copyBlock(b), nil
}

func (db *MemoryDatabase) DeleteBlock(userID, blockID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.blocks[blockID]
	if !ok || b.UserID != userID {
		return false, nil
	}
	delete(db.blocks, blockID)
	db.blockOrder = removeID(db.blockOrder, blockID)
	return true, nil
}

func (db *MemoryDatabase) ListBlocksByCanvas(userID, canvasID string) ([]models.Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.canReadCanvas(userID, canvasID) {
		return nil, nil
	}
	var result []models.Block
	for _, id := range db.blockOrder {
		if b := db.blocks[id]; b.CanvasID == canvasID {
			result = append(result, *copyBlock(b))
		}
	}
	return result, nil
}

func (db *MemoryDatabase) CreateConnection(c *models.Connection) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	source, ok := db.blocks[c.SourceBlockID]
	if !ok || source.CanvasID != c.CanvasID {
		return ErrForeignKey
	}
	target, ok := db.blocks[c.TargetBlockID]
	if !ok || target.CanvasID != c.CanvasID {
		return ErrForeignKey
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()

	stored := *c
	db.connections[c.ID] = &stored
	db.connectionOrder = append(db.connectionOrder, c.ID)
	return nil
}

func (db *MemoryDatabase) DeleteConnection(userID, connectionID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.connections[connectionID]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(db.connections, connectionID)
	db.connectionOrder = removeID(db.connectionOrder, connectionID)
	return true, nil
}

func (db *MemoryDatabase) ListConnectionsByCanvas(userID, canvasID string) ([]models.Connection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.canReadCanvas(userID, canvasID) {
		return nil, nil
	}
	var result []models.Connection
	for _, id := range db.connectionOrder {
		if c := db.connections[id]; c.CanvasID == canvasID {
			result = append(result, *c)
		}
	}
	return result, nil
}

// SetCanvasPublic flips a canvas's visibility directly. The GraphQL
// surface has no publish operation yet; sharing flows set this flag
// through the hosted dashboard.
func (db *MemoryDatabase) SetCanvasPublic(canvasID string, public bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.canvases[canvasID]
	if !ok {
		return ErrNoRows
	}
	c.IsPublic = public
	c.UpdatedAt = time.Now()
	return nil
}

func (db *MemoryDatabase) HealthCheck() error { return nil }

func (db *MemoryDatabase) Close() error { return nil }

// canReadCanvas mirrors the select policy: owner or public.
func (db *MemoryDatabase) canReadCanvas(userID, canvasID string) bool {
	c, ok := db.canvases[canvasID]
	return ok && (c.UserID == userID || c.IsPublic)
}

func copyBlock(b *models.Block) *models.Block {
	out := *b
	if b.Content != nil {
		out.Content = make(map[string]interface{}, len(b.Content))
		for k, v := range b.Content {
			out.Content[k] = v
		}
	}
	return &out
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
