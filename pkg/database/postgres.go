package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"canvas-notes-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgresDatabase is the direct-connection variant for deployments that
// reach the database without the REST gateway. Conditional writes are
// owner-scoped in the WHERE clause; RETURNING gives row-or-none semantics.
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase opens a pooled connection suitable for serverless
// runtimes (few connections, short lifetimes).
func NewPostgresDatabase(dsn string) (DatabaseInterface, error) {
	dsn = strings.TrimSpace(dsn)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDatabase{db: db}, nil
}

// translateError maps driver errors to the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ErrForeignKey
	}
	return err
}

func scanCanvas(row *sql.Row) (*models.Canvas, error) {
	var c models.Canvas
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.IsPublic, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func scanBlockColumns(scan func(dest ...interface{}) error) (*models.Block, error) {
	var b models.Block
	var contentJSON []byte
	err := scan(&b.ID, &b.CanvasID, &b.UserID, &b.Type, &contentJSON,
		&b.Position.X, &b.Position.Y, &b.Size.Width, &b.Size.Height,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	b.Content = map[string]interface{}{}
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &b.Content); err != nil {
			return nil, fmt.Errorf("decode block content: %w", err)
		}
	}
	return &b, nil
}

const blockColumns = "id, canvas_id, user_id, type, content, x, y, width, height, notes, created_at, updated_at"

// ================= Canvases =================

func (db *PostgresDatabase) CreateCanvas(c *models.Canvas) error {
	row := db.db.QueryRow(
		`INSERT INTO canvases (user_id, title, is_public)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, title, is_public, created_at, updated_at`,
		c.UserID, c.Title, c.IsPublic,
	)
	created, err := scanCanvas(row)
	if err != nil {
		return err
	}
	*c = *created
	return nil
}

func (db *PostgresDatabase) GetCanvas(userID, canvasID string) (*models.Canvas, error) {
	row := db.db.QueryRow(
		`SELECT id, user_id, title, is_public, created_at, updated_at
		 FROM canvases WHERE id = $1 AND (user_id = $2 OR is_public)`,
		canvasID, userID,
	)
	return scanCanvas(row)
}

func (db *PostgresDatabase) ListUserCanvases(userID string) ([]models.Canvas, error) {
	rows, err := db.db.Query(
		`SELECT id, user_id, title, is_public, created_at, updated_at
		 FROM canvases WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
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

func (db *PostgresDatabase) UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error) {
	row := db.db.QueryRow(
		`UPDATE canvases SET title = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3
		 RETURNING id, user_id, title, is_public, created_at, updated_at`,
		title, canvasID, userID,
	)
	return scanCanvas(row)
}

func (db *PostgresDatabase) CountBlocks(canvasID string) (int, error) {
	var count int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE canvas_id = $1`, canvasID).Scan(&count)
	return count, err
}

// ================= Blocks =================

func (db *PostgresDatabase) CreateBlock(b *models.Block) error {
	// the FK alone only proves the canvas exists; the caller must also
	// be allowed to see it before they can write into it
	var (
		ownerID  string
		isPublic bool
	)
	err := db.db.QueryRow(`SELECT user_id, is_public FROM canvases WHERE id = $1`, b.CanvasID).Scan(&ownerID, &isPublic)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrForeignKey
	}
	if err != nil {
		return translateError(err)
	}
	if ownerID != b.UserID && !isPublic {
		return ErrNoRows
	}

	contentJSON, err := json.Marshal(b.Content)
	if err != nil {
		return fmt.Errorf("encode block content: %w", err)
	}
	row := db.db.QueryRow(
		`INSERT INTO blocks (canvas_id, user_id, type, content, x, y, width, height, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+blockColumns,
		b.CanvasID, b.UserID, b.Type, contentJSON,
		b.Position.X, b.Position.Y, b.Size.Width, b.Size.Height, b.Notes,
	)
	created, err := scanBlockColumns(row.Scan)
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

func (db *PostgresDatabase) GetBlock(userID, blockID string) (*models.Block, error) {
	row := db.db.QueryRow(
		`SELECT `+blockColumns+` FROM blocks WHERE id = $1 AND user_id = $2`,
		blockID, userID,
	)
	return scanBlockColumns(row.Scan)
}

func (db *PostgresDatabase) UpdateBlockPartial(userID, blockID string, patch map[string]interface{}) (*models.Block, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{}
	idx := 1

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if x, ok := patch["x"]; ok {
		appendSet("x", x)
	}
	if y, ok := patch["y"]; ok {
		appendSet("y", y)
	}
	if content, ok := patch["content"]; ok {
		contentJSON, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("encode block content: %w", err)
		}
		appendSet("content", contentJSON)
	}
	if notes, ok := patch["notes"]; ok {
		appendSet("notes", notes)
	}

	query := fmt.Sprintf(
		`UPDATE blocks SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idx, idx+1, blockColumns,
	)
	args = append(args, blockID, userID)

	return scanBlockColumns(db.db.QueryRow(query, args...).Scan)
}

func (db *PostgresDatabase) DeleteBlock(userID, blockID string) (bool, error) {
	res, err := db.db.Exec(`DELETE FROM blocks WHERE id = $1 AND user_id = $2`, blockID, userID)
	if err != nil {
		return false, translateError(err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (db *PostgresDatabase) ListBlocksByCanvas(userID, canvasID string) ([]models.Block, error) {
	rows, err := db.db.Query(
		`SELECT `+blockColumns+` FROM blocks
		 WHERE canvas_id = $1
		   AND canvas_id IN (SELECT id FROM canvases WHERE user_id = $2 OR is_public)
		 ORDER BY created_at ASC`,
		canvasID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Block
	for rows.Next() {
		b, err := scanBlockColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

// ================= Connections =================

func (db *PostgresDatabase) CreateConnection(c *models.Connection) error {
	row := db.db.QueryRow(
		`INSERT INTO connections (canvas_id, user_id, source_block_id, target_block_id, source_handle, target_handle)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, canvas_id, user_id, source_block_id, target_block_id, source_handle, target_handle, created_at`,
		c.CanvasID, c.UserID, c.SourceBlockID, c.TargetBlockID, c.SourceHandle, c.TargetHandle,
	)
	var created models.Connection
	err := row.Scan(&created.ID, &created.CanvasID, &created.UserID,
		&created.SourceBlockID, &created.TargetBlockID,
		&created.SourceHandle, &created.TargetHandle, &created.CreatedAt)
	if err != nil {
		return translateError(err)
	}
	*c = created
	return nil
}

func (db *PostgresDatabase) DeleteConnection(userID, connectionID string) (bool, error) {
	res, err := db.db.Exec(`DELETE FROM connections WHERE id = $1 AND user_id = $2`, connectionID, userID)
	if err != nil {
		return false, translateError(err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (db *PostgresDatabase) ListConnectionsByCanvas(userID, canvasID string) ([]models.Connection, error) {
	rows, err := db.db.Query(
		`SELECT id, canvas_id, user_id, source_block_id, target_block_id, source_handle, target_handle, created_at
		 FROM connections
		 WHERE canvas_id = $1
		   AND canvas_id IN (SELECT id FROM canvases WHERE user_id = $2 OR is_public)
		 ORDER BY created_at ASC`,
		canvasID, userID,
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

func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
