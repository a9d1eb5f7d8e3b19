package service

import (
	"errors"
	"math"
	"strings"
	"time"

	"canvas-notes-backend/pkg/database"
	"canvas-notes-backend/pkg/models"
)

// UndoGracePeriod is how long after creation a block may still be undone.
// Blocks are otherwise never deleted.
const UndoGracePeriod = 30 * time.Second

// GraphService validates canvas/block/connection operations and delegates
// row access to the persistence collaborator. Authorization lives in the
// store (row-level security / caller-scoped filters); this layer checks
// only that a caller identity is present, and maps store outcomes to the
// four error kinds.
type GraphService struct {
	db  database.DatabaseInterface
	now func() time.Time
}

// NewGraphService creates a GraphService on top of a store.
func NewGraphService(db database.DatabaseInterface) *GraphService {
	return &GraphService{db: db, now: time.Now}
}

// NewGraphServiceWithClock is NewGraphService with an injectable clock,
// for tests that need to age blocks past the undo window.
func NewGraphServiceWithClock(db database.DatabaseInterface, now func() time.Time) *GraphService {
	return &GraphService{db: db, now: now}
}

// ================= Canvases =================

// CreateCanvas creates a canvas for the caller. The title is trimmed and
// defaults to "Untitled Canvas" when empty.
func (s *GraphService) CreateCanvas(userID, title string) (*models.Canvas, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultCanvasTitle
	}
	c := &models.Canvas{UserID: userID, Title: title, IsPublic: false}
	if err := s.db.CreateCanvas(c); err != nil {
		return nil, errInternal(err)
	}
	return c, nil
}

// GetCanvas returns one canvas the caller may see (owner or public).
func (s *GraphService) GetCanvas(userID, canvasID string) (*models.Canvas, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	c, err := s.db.GetCanvas(userID, canvasID)
	if errors.Is(err, database.ErrNoRows) {
		return nil, errNotFound("canvas")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return c, nil
}

// ListCanvases returns the caller's canvases with per-canvas block counts.
func (s *GraphService) ListCanvases(userID string) ([]models.CanvasSummary, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	canvases, err := s.db.ListUserCanvases(userID)
	if err != nil {
		return nil, errInternal(err)
	}
	summaries := make([]models.CanvasSummary, 0, len(canvases))
	for _, c := range canvases {
		count, err := s.db.CountBlocks(c.ID)
		if err != nil {
			return nil, errInternal(err)
		}
		summaries = append(summaries, models.CanvasSummary{Canvas: c, BlockCount: count})
	}
	return summaries, nil
}

// UpdateCanvasTitle renames a canvas the caller owns.
func (s *GraphService) UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errBadInput("title must not be empty")
	}
	c, err := s.db.UpdateCanvasTitle(userID, canvasID, title)
	if errors.Is(err, database.ErrNoRows) {
		return nil, errNotFound("canvas")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return c, nil
}

// ================= Blocks =================

// CreateBlock places a new block on a canvas. Content defaults to an empty
// mapping; size is fixed at the default at creation.
func (s *GraphService) CreateBlock(userID, canvasID, blockType string, pos models.Position, content map[string]interface{}) (*models.Block, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	if strings.TrimSpace(blockType) == "" {
		return nil, errBadInput("block type must not be empty")
	}
	if !finite(pos.X) || !finite(pos.Y) {
		return nil, errBadInput("position must have numeric x and y")
	}
	if content == nil {
		content = map[string]interface{}{}
	}
	b := &models.Block{
		CanvasID: canvasID,
		UserID:   userID,
		Type:     blockType,
		Content:  content,
		Position: pos,
		Size:     models.Size{Width: models.DefaultBlockWidth, Height: models.DefaultBlockHeight},
	}
	err := s.db.CreateBlock(b)
	if errors.Is(err, database.ErrForeignKey) || errors.Is(err, database.ErrNoRows) {
		return nil, errNotFound("canvas")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return b, nil
}

// UpdateBlockPosition moves a block the caller owns.
func (s *GraphService) UpdateBlockPosition(userID, blockID string, pos models.Position) (*models.Block, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	if !finite(pos.X) || !finite(pos.Y) {
		return nil, errBadInput("position must have numeric x and y")
	}
	return s.patchBlock(userID, blockID, map[string]interface{}{"x": pos.X, "y": pos.Y})
}

// UpdateBlockContent replaces a block's content. Null content is rejected;
// clearing content is expressed as an empty mapping.
func (s *GraphService) UpdateBlockContent(userID, blockID string, content map[string]interface{}) (*models.Block, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	if content == nil {
		return nil, errBadInput("content must not be null")
	}
	return s.patchBlock(userID, blockID, map[string]interface{}{"content": content})
}

// UpdateBlockNotes replaces a block's notes. Null notes are rejected;
// clearing notes is expressed as an empty string.
func (s *GraphService) UpdateBlockNotes(userID, blockID string, notes *string) (*models.Block, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	if notes == nil {
		return nil, errBadInput("notes must not be null")
	}
	return s.patchBlock(userID, blockID, map[string]interface{}{"notes": *notes})
}

func (s *GraphService) patchBlock(userID, blockID string, patch map[string]interface{}) (*models.Block, error) {
	b, err := s.db.UpdateBlockPartial(userID, blockID, patch)
	if errors.Is(err, database.ErrNoRows) {
		return nil, errNotFound("block")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return b, nil
}

// UndoBlockCreation deletes a block the caller owns when no more than the
// grace period has elapsed since creation. In every other case it reports
// false, without distinguishing missing, foreign, and late blocks.
func (s *GraphService) UndoBlockCreation(userID, blockID string) (bool, error) {
	if userID == "" {
		return false, errUnauthenticated()
	}
	b, err := s.db.GetBlock(userID, blockID)
	if errors.Is(err, database.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errInternal(err)
	}
	if s.now().Sub(b.CreatedAt) > UndoGracePeriod {
		return false, nil
	}
	deleted, err := s.db.DeleteBlock(userID, blockID)
	if err != nil {
		return false, errInternal(err)
	}
	return deleted, nil
}

// ListBlocks returns all blocks of a canvas the caller may see.
func (s *GraphService) ListBlocks(userID, canvasID string) ([]models.Block, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	blocks, err := s.db.ListBlocksByCanvas(userID, canvasID)
	if err != nil {
		return nil, errInternal(err)
	}
	return blocks, nil
}

// ================= Connections =================

// CreateConnection links two blocks on the same canvas.
// TODO: reject self-connections and duplicate edges once product decides
// they are invalid; both are currently accepted.
func (s *GraphService) CreateConnection(userID, canvasID, sourceBlockID, targetBlockID, sourceHandle, targetHandle string) (*models.Connection, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	c := &models.Connection{
		CanvasID:      canvasID,
		UserID:        userID,
		SourceBlockID: sourceBlockID,
		TargetBlockID: targetBlockID,
		SourceHandle:  sourceHandle,
		TargetHandle:  targetHandle,
	}
	err := s.db.CreateConnection(c)
	if errors.Is(err, database.ErrForeignKey) {
		return nil, errBadInput("source or target block does not exist on this canvas")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return c, nil
}

// DeleteConnection removes a connection the caller owns. Zero affected rows
// is reported as not-found, with the usual conflation.
func (s *GraphService) DeleteConnection(userID, connectionID string) (bool, error) {
	if userID == "" {
		return false, errUnauthenticated()
	}
	deleted, err := s.db.DeleteConnection(userID, connectionID)
	if err != nil {
		return false, errInternal(err)
	}
	if !deleted {
		return false, errNotFound("connection")
	}
	return true, nil
}

// ListConnections returns all connections of a canvas the caller may see.
func (s *GraphService) ListConnections(userID, canvasID string) ([]models.Connection, error) {
	if userID == "" {
		return nil, errUnauthenticated()
	}
	connections, err := s.db.ListConnectionsByCanvas(userID, canvasID)
	if err != nil {
		return nil, errInternal(err)
	}
	return connections, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
