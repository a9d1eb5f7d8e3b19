package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"canvas-notes-backend/pkg/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteDatabase is the single-file local development store.
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase opens (or creates) the SQLite file at dbPath.
func NewSQLiteDatabase(dbPath string) (DatabaseInterface, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer; a single connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db := &SQLiteDatabase{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *SQLiteDatabase) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS canvases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS blocks (
		id TEXT PRIMARY KEY,
		canvas_id TEXT NOT NULL REFERENCES canvases(id),
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		width REAL NOT NULL DEFAULT 200,
		height REAL NOT NULL DEFAULT 100,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		canvas_id TEXT NOT NULL REFERENCES canvases(id),
		user_id TEXT NOT NULL,
		source_block_id TEXT NOT NULL REFERENCES blocks(id),
		target_block_id TEXT NOT NULL REFERENCES blocks(id),
		source_handle TEXT NOT NULL DEFAULT '',
		target_handle TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_canvas ON blocks(canvas_id);
	CREATE INDEX IF NOT EXISTS idx_connections_canvas ON connections(canvas_id);
	`
	_, err := db.db.Exec(schema)
	return err
}

// ================= Canvases =================

func (db *SQLiteDatabase) CreateCanvas(c *models.Canvas) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := db.db.Exec(
		`INSERT INTO canvases (id, user_id, title, is_public, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.IsPublic, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (db *SQLiteDatabase) GetCanvas(userID, canvasID string) (*models.Canvas, error) {
	var c models.Canvas
	err := db.db.QueryRow(
		`SELECT id, user_id, title, is_public, created_at, updated_at
		 FROM canvases WHERE id = ? AND (user_id = ? OR is_public = 1)`,
		canvasID, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.IsPublic, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get canvas: %w", err)
	}
	return &c, nil
}

func (db *SQLiteDatabase) ListUserCanvases(userID string) ([]models.Canvas, error) {
	rows, err := db.db.Query(
		`SELECT id, user_id, title, is_public, created_at, updated_at
		 FROM canvases WHERE user_id = ? ORDER BY created_at ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Canvas
	for rows.Next() {
		var c models.Canvas
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.IsPublic, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (db *SQLiteDatabase) UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error) {
	res, err := db.db.Exec(
		`UPDATE canvases SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, time.Now(), canvasID, userID,
	)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNoRows
	}
	return db.GetCanvas(userID, canvasID)
}

func (db *SQLiteDatabase) CountBlocks(canvasID string) (int, error) {
	var count int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE canvas_id = ?`, canvasID).Scan(&count)
	return count, err
}

// ================= Blocks =================

func (db *SQLiteDatabase) CreateBlock(b *models.Block) error {
	// match server FK behavior: the canvas must exist, and the caller
	// must be allowed to see it before they can write into it
	var (
		ownerID  string
		isPublic bool
	)
	err := db.db.QueryRow(`SELECT user_id, is_public FROM canvases WHERE id = ?`, b.CanvasID).Scan(&ownerID, &isPublic)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrForeignKey
	}
	if err != nil {
		return err
	}
	if ownerID != b.UserID && !isPublic {
		return ErrNoRows
	}

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	contentJSON, err := json.Marshal(b.Content)
	if err != nil {
		return fmt.Errorf("encode block content: %w", err)
	}
	_, err = db.db.Exec(
		`INSERT INTO blocks (id, canvas_id, user_id, type, content, x, y, width, height, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CanvasID, b.UserID, b.Type, string(contentJSON),
		b.Position.X, b.Position.Y, b.Size.Width, b.Size.Height, b.Notes,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (db *SQLiteDatabase) scanBlock(row *sql.Row) (*models.Block, error) {
	var b models.Block
	var contentJSON string
	err := row.Scan(&b.ID, &b.CanvasID, &b.UserID, &b.Type, &contentJSON,
		&b.Position.X, &b.Position.Y, &b.Size.Width, &b.Size.Height,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	b.Content = map[string]interface{}{}
	if contentJSON != "" {
		if err := json.Unmarshal([]byte(contentJSON), &b.Content); err != nil {
			return nil, fmt.Errorf("decode block content: %w", err)
		}
	}
	return &b, nil
}

func (db *SQLiteDatabase) GetBlock(userID, blockID string) (*models.Block, error) {
	row := db.db.QueryRow(
		`SELECT id, canvas_id, user_id, type, content, x, y, width, height, notes, created_at, updated_at
		 FROM blocks WHERE id = ? AND user_id = ?`, blockID, userID,
	)
	return db.scanBlock(row)
}

func (db *SQLiteDatabase) UpdateBlockPartial(userID, blockID string, patch map[string]interface{}) (*models.Block, error) {
	b, err := db.GetBlock(userID, blockID)
	if err != nil {
		return nil, err
	}
	if x, ok := patch["x"].(float64); ok {
		b.Position.X = x
	}
	if y, ok := patch["y"].(float64); ok {
		b.Position.Y = y
	}
	if content, ok := patch["content"].(map[string]interface{}); ok {
		b.Content = content
	}
	if notes, ok := patch["notes"].(string); ok {
		b.Notes = notes
	}
	b.UpdatedAt = time.Now()

	contentJSON, err := json.Marshal(b.Content)
	if err != nil {
		return nil, fmt.Errorf("encode block content: %w", err)
	}
	_, err = db.db.Exec(
		`UPDATE blocks SET content = ?, x = ?, y = ?, notes = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(contentJSON), b.Position.X, b.Position.Y, b.Notes, b.UpdatedAt, blockID, userID,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (db *SQLiteDatabase) DeleteBlock(userID, blockID string) (bool, error) {
	res, err := db.db.Exec(`DELETE FROM blocks WHERE id = ? AND user_id = ?`, blockID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (db *SQLiteDatabase) ListBlocksByCanvas(userID, canvasID string) ([]models.Block, error) {
	if _, err := db.GetCanvas(userID, canvasID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := db.db.Query(
		`SELECT id, canvas_id, user_id, type, content, x, y, width, height, notes, created_at, updated_at
		 FROM blocks WHERE canvas_id = ? ORDER BY created_at ASC`, canvasID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Block
	for rows.Next() {
		var b models.Block
		var contentJSON string
		if err := rows.Scan(&b.ID, &b.CanvasID, &b.UserID, &b.Type, &contentJSON,
			&b.Position.X, &b.Position.Y, &b.Size.Width, &b.Size.Height,
			&b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Content = map[string]interface{}{}
		if contentJSON != "" {
			if err := json.Unmarshal([]byte(contentJSON), &b.Content); err != nil {
				return nil, fmt.Errorf("decode block content: %w", err)
			}
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ================= Connections =================

func (db *SQLiteDatabase) CreateConnection(c *models.Connection) error {
	// both endpoints must exist on the same canvas
	for _, blockID := range []string{c.SourceBlockID, c.TargetBlockID} {
		var canvasID string
		err := db.db.QueryRow(`SELECT canvas_id FROM blocks WHERE id = ?`, blockID).Scan(&canvasID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && canvasID != c.CanvasID) {
			return ErrForeignKey
		}
		if err != nil {
			return err
		}
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	_, err := db.db.Exec(
		`INSERT INTO connections (id, canvas_id, user_id, source_block_id, target_block_id, source_handle, target_handle, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CanvasID, c.UserID, c.SourceBlockID, c.TargetBlockID,
		c.SourceHandle, c.TargetHandle, c.CreatedAt,
	)
	return err
}

func (db *SQLiteDatabase) DeleteConnection(userID, connectionID string) (bool, error) {
	res, err := db.db.Exec(`DELETE FROM connections WHERE id = ? AND user_id = ?`, connectionID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (db *SQLiteDatabase) ListConnectionsByCanvas(userID, canvasID string) ([]models.Connection, error) {
	if _, err := db.GetCanvas(userID, canvasID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := db.db.Query(
		`SELECT id, canvas_id, user_id, source_block_id, target_block_id, source_handle, target_handle, created_at
		 FROM connections WHERE canvas_id = ? ORDER BY created_at ASC`, canvasID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Connection
	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(&c.ID, &c.CanvasID, &c.UserID,
			&c.SourceBlockID, &c.TargetBlockID,
			&c.SourceHandle, &c.TargetHandle, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (db *SQLiteDatabase) HealthCheck() error {
	return db.db.Ping()
}

func (db *SQLiteDatabase) Close() error {
	return db.db.Close()
}
