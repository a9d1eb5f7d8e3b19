package models

import "time"

// DefaultCanvasTitle is substituted when a canvas is created without a title.
const DefaultCanvasTitle = "Untitled Canvas"

// Canvas is a named workspace of blocks and connections owned by one user.
// Canvases are never deleted; only the title is mutable, and only by the owner.
type Canvas struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	IsPublic  bool      `json:"is_public" db:"is_public"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanvasSummary is the listing shape returned by myCanvases.
type CanvasSummary struct {
	Canvas
	BlockCount int `json:"block_count"`
}
