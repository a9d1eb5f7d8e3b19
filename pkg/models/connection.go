package models

import "time"

// Connection is a directed edge between two blocks on the same canvas,
// optionally anchored at named handles on the blocks' visual boundary.
// Connections have no update operation; a changed connection is
// delete + create.
type Connection struct {
	ID            string    `json:"id" db:"id"`
	CanvasID      string    `json:"canvas_id" db:"canvas_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	SourceBlockID string    `json:"source_block_id" db:"source_block_id"`
	TargetBlockID string    `json:"target_block_id" db:"target_block_id"`
	SourceHandle  string    `json:"source_handle,omitempty" db:"source_handle"`
	TargetHandle  string    `json:"target_handle,omitempty" db:"target_handle"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
