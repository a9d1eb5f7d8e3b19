package database

import (
	"errors"
	"fmt"

	"canvas-notes-backend/pkg/models"
)

// Sentinel errors every implementation reports with, so callers can map
// store outcomes without knowing the backend.
var (
	// ErrNoRows means the conditional read/update/delete matched nothing.
	// "absent" and "not yours" are indistinguishable at this layer: the
	// row filters are caller-scoped and a non-owner sees zero rows.
	ErrNoRows = errors.New("database: no matching rows")

	// ErrForeignKey means an insert referenced a row that does not exist
	// (or belongs to a different canvas, for composite references).
	ErrForeignKey = errors.New("database: foreign key violation")
)

// DatabaseInterface is the persistence collaborator for the graph data
// service. Every row-touching method is scoped to the calling user. The
// hosted backend's row-level security policies describe the same scope,
// but the service role connection bypasses them, so each implementation
// enforces the scope itself.
type DatabaseInterface interface {
	// Canvases
	CreateCanvas(c *models.Canvas) error
	// GetCanvas returns the canvas when the caller owns it or it is public.
	GetCanvas(userID, canvasID string) (*models.Canvas, error)
	ListUserCanvases(userID string) ([]models.Canvas, error)
	// UpdateCanvasTitle is a conditional owner-scoped update returning the
	// updated row, or ErrNoRows when nothing matched.
	UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error)
	CountBlocks(canvasID string) (int, error)

	// Blocks
	CreateBlock(b *models.Block) error
	GetBlock(userID, blockID string) (*models.Block, error)
	// UpdateBlockPartial patches only the given columns. Allowed keys:
	// "x", "y", "content", "notes". canvas_id is never patchable.
	UpdateBlockPartial(userID, blockID string, patch map[string]interface{}) (*models.Block, error)
	// DeleteBlock removes an owned block, reporting whether a row went away.
	DeleteBlock(userID, blockID string) (bool, error)
	ListBlocksByCanvas(userID, canvasID string) ([]models.Block, error)

	// Connections
	CreateConnection(c *models.Connection) error
	DeleteConnection(userID, connectionID string) (bool, error)
	ListConnectionsByCanvas(userID, canvasID string) ([]models.Connection, error)

	// Health and lifecycle
	HealthCheck() error
	Close() error
}

// DatabaseConfig carries the connection settings for NewDatabase.
type DatabaseConfig struct {
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	SQLitePath  string
	// UseLocalDB forces the SQLite backend even when hosted credentials
	// are present, so local development never touches production data.
	UseLocalDB bool
	Debug      bool
}

// NewDatabase picks a backend from the configuration: SQLite when the
// local override is set, then Supabase REST (the authoritative
// deployment), then direct PostgreSQL, then a local SQLite file.
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if config.UseLocalDB && config.SQLitePath != "" {
		fmt.Printf("Using local SQLite backend at %s\n", config.SQLitePath)
		return NewSQLiteDatabase(config.SQLitePath)
	}

	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		fmt.Println("Using Supabase REST API backend")
		return NewSupabaseDatabase(config.SupabaseURL, config.SupabaseKey), nil
	}

	if config.PostgresDSN != "" {
		fmt.Println("Using PostgreSQL backend")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	if config.SQLitePath != "" {
		fmt.Printf("Using local SQLite backend at %s\n", config.SQLitePath)
		return NewSQLiteDatabase(config.SQLitePath)
	}

	return nil, fmt.Errorf("no database configured: set SUPABASE_URL+SUPABASE_SERVICE_KEY, POSTGRES_DSN, or SQLITE_PATH")
}
