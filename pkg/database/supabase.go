package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"canvas-notes-backend/pkg/models"
)

// SupabaseDatabase talks to the hosted Postgres through the PostgREST API.
// Requests carry the service role key, which bypasses row-level security,
// so the scope the policies would enforce is restated in every filter here.
// The explicit user_id filters keep the row-or-none semantics identical
// across backends.
type SupabaseDatabase struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSupabaseDatabase creates a Supabase-backed store.
func NewSupabaseDatabase(rawURL, key string) DatabaseInterface {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "https://" + rawURL
	}
	return &SupabaseDatabase{
		baseURL: strings.TrimSuffix(rawURL, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// makeRequest sends one PostgREST request and returns the response body.
// Prefer: return=representation makes writes answer with the affected rows,
// which is how "updated row or none" is observed.
func (db *SupabaseDatabase) makeRequest(method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, db.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+db.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		// PostgREST reports the SQLSTATE in the error body; 23503 is the
		// foreign key violation the service maps to bad input.
		if strings.Contains(string(respBody), "23503") {
			return nil, ErrForeignKey
		}
		return nil, fmt.Errorf("supabase request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// supabase row shapes: PostgREST speaks snake_case columns and flat numeric
// coordinates, mapped here to the wire models.

type canvasRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type blockRow struct {
	ID        string                 `json:"id"`
	CanvasID  string                 `json:"canvas_id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Content   map[string]interface{} `json:"content"`
	X         float64                `json:"x"`
	Y         float64                `json:"y"`
	Width     float64                `json:"width"`
	Height    float64                `json:"height"`
	Notes     string                 `json:"notes"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type connectionRow struct {
	ID            string    `json:"id"`
	CanvasID      string    `json:"canvas_id"`
	UserID        string    `json:"user_id"`
	SourceBlockID string    `json:"source_block_id"`
	TargetBlockID string    `json:"target_block_id"`
	SourceHandle  string    `json:"source_handle"`
	TargetHandle  string    `json:"target_handle"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r canvasRow) toModel() models.Canvas {
	return models.Canvas{
		ID: r.ID, UserID: r.UserID, Title: r.Title, IsPublic: r.IsPublic,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (r blockRow) toModel() models.Block {
	content := r.Content
	if content == nil {
		content = map[string]interface{}{}
	}
	return models.Block{
		ID: r.ID, CanvasID: r.CanvasID, UserID: r.UserID, Type: r.Type,
		Content:  content,
		Position: models.Position{X: r.X, Y: r.Y},
		Size:     models.Size{Width: r.Width, Height: r.Height},
		Notes:    r.Notes, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (r connectionRow) toModel() models.Connection {
	return models.Connection{
		ID: r.ID, CanvasID: r.CanvasID, UserID: r.UserID,
		SourceBlockID: r.SourceBlockID, TargetBlockID: r.TargetBlockID,
		SourceHandle: r.SourceHandle, TargetHandle: r.TargetHandle,
		CreatedAt: r.CreatedAt,
	}
}

// ================= Canvases =================

func (db *SupabaseDatabase) CreateCanvas(c *models.Canvas) error {
	payload := map[string]interface{}{
		"user_id":   c.UserID,
		"title":     c.Title,
		"is_public": c.IsPublic,
	}
	data, err := db.makeRequest("POST", "/canvases", payload)
	if err != nil {
		return err
	}
	var rows []canvasRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return fmt.Errorf("create canvas: unexpected response: %s", string(data))
	}
	*c = rows[0].toModel()
	return nil
}

func (db *SupabaseDatabase) GetCanvas(userID, canvasID string) (*models.Canvas, error) {
	endpoint := fmt.Sprintf("/canvases?id=eq.%s&or=(user_id.eq.%s,is_public.is.true)&select=*",
		url.QueryEscape(canvasID), url.QueryEscape(userID))
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []canvasRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse canvas response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	c := rows[0].toModel()
	return &c, nil
}

func (db *SupabaseDatabase) ListUserCanvases(userID string) ([]models.Canvas, error) {
	endpoint := "/canvases?user_id=eq." + url.QueryEscape(userID) + "&select=*&order=created_at.asc"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []canvasRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse canvases response: %w", err)
	}
	result := make([]models.Canvas, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toModel())
	}
	return result, nil
}

func (db *SupabaseDatabase) UpdateCanvasTitle(userID, canvasID, title string) (*models.Canvas, error) {
	endpoint := fmt.Sprintf("/canvases?id=eq.%s&user_id=eq.%s",
		url.QueryEscape(canvasID), url.QueryEscape(userID))
	data, err := db.makeRequest("PATCH", endpoint, map[string]interface{}{
		"title":      title,
		"updated_at": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	var rows []canvasRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse canvas response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	c := rows[0].toModel()
	return &c, nil
}

func (db *SupabaseDatabase) CountBlocks(canvasID string) (int, error) {
	endpoint := "/blocks?canvas_id=eq." + url.QueryEscape(canvasID) + "&select=id"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return 0, err
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parse block count response: %w", err)
	}
	return len(rows), nil
}

// ================= Blocks =================

// checkCanvasAccess verifies that userID may touch canvasID. Absent
// canvas and inaccessible canvas stay distinct so CreateBlock reports
// the same sentinels on every backend.
func (db *SupabaseDatabase) checkCanvasAccess(userID, canvasID string) error {
	endpoint := "/canvases?id=eq." + url.QueryEscape(canvasID) + "&select=user_id,is_public"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	var rows []canvasRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse canvas response: %w", err)
	}
	if len(rows) == 0 {
		return ErrForeignKey
	}
	if rows[0].UserID != userID && !rows[0].IsPublic {
		return ErrNoRows
	}
	return nil
}

func (db *SupabaseDatabase) CreateBlock(b *models.Block) error {
	if err := db.checkCanvasAccess(b.UserID, b.CanvasID); err != nil {
		return err
	}
	payload := map[string]interface{}{
		"canvas_id": b.CanvasID,
		"user_id":   b.UserID,
		"type":      b.Type,
		"content":   b.Content,
		"x":         b.Position.X,
		"y":         b.Position.Y,
		"width":     b.Size.Width,
		"height":    b.Size.Height,
		"notes":     b.Notes,
	}
	data, err := db.makeRequest("POST", "/blocks", payload)
	if err != nil {
		return err
	}
	var rows []blockRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return fmt.Errorf("create block: unexpected response: %s", string(data))
	}
	*b = rows[0].toModel()
	return nil
}

func (db *SupabaseDatabase) GetBlock(userID, blockID string) (*models.Block, error) {
	endpoint := fmt.Sprintf("/blocks?id=eq.%s&user_id=eq.%s&select=*",
		url.QueryEscape(blockID), url.QueryEscape(userID))
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []blockRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse block response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	b := rows[0].toModel()
	return &b, nil
}

func (db *SupabaseDatabase) UpdateBlockPartial(userID, blockID string, patch map[string]interface{}) (*models.Block, error) {
	payload := make(map[string]interface{}, len(patch)+1)
	for k, v := range patch {
		payload[k] = v
	}
	payload["updated_at"] = time.Now().Format(time.RFC3339)

	endpoint := fmt.Sprintf("/blocks?id=eq.%s&user_id=eq.%s",
		url.QueryEscape(blockID), url.QueryEscape(userID))
	data, err := db.makeRequest("PATCH", endpoint, payload)
	if err != nil {
		return nil, err
	}
	var rows []blockRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse block response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	b := rows[0].toModel()
	return &b, nil
}

func (db *SupabaseDatabase) DeleteBlock(userID, blockID string) (bool, error) {
	endpoint := fmt.Sprintf("/blocks?id=eq.%s&user_id=eq.%s",
		url.QueryEscape(blockID), url.QueryEscape(userID))
	data, err := db.makeRequest("DELETE", endpoint, nil)
	if err != nil {
		return false, err
	}
	var rows []blockRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parse delete response: %w", err)
	}
	return len(rows) > 0, nil
}

func (db *SupabaseDatabase) ListBlocksByCanvas(userID, canvasID string) ([]models.Block, error) {
	if err := db.checkCanvasAccess(userID, canvasID); err != nil {
		if errors.Is(err, ErrNoRows) || errors.Is(err, ErrForeignKey) {
			return nil, nil
		}
		return nil, err
	}
	endpoint := "/blocks?canvas_id=eq." + url.QueryEscape(canvasID) + "&select=*&order=created_at.asc"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []blockRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse blocks response: %w", err)
	}
	result := make([]models.Block, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toModel())
	}
	return result, nil
}

// ================= Connections =================

func (db *SupabaseDatabase) CreateConnection(c *models.Connection) error {
	payload := map[string]interface{}{
		"canvas_id":       c.CanvasID,
		"user_id":         c.UserID,
		"source_block_id": c.SourceBlockID,
		"target_block_id": c.TargetBlockID,
		"source_handle":   c.SourceHandle,
		"target_handle":   c.TargetHandle,
	}
	data, err := db.makeRequest("POST", "/connections", payload)
	if err != nil {
		return err
	}
	var rows []connectionRow
	if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
		return fmt.Errorf("create connection: unexpected response: %s", string(data))
	}
	*c = rows[0].toModel()
	return nil
}

func (db *SupabaseDatabase) DeleteConnection(userID, connectionID string) (bool, error) {
	endpoint := fmt.Sprintf("/connections?id=eq.%s&user_id=eq.%s",
		url.QueryEscape(connectionID), url.QueryEscape(userID))
	data, err := db.makeRequest("DELETE", endpoint, nil)
	if err != nil {
		return false, err
	}
	var rows []connectionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parse delete response: %w", err)
	}
	return len(rows) > 0, nil
}

func (db *SupabaseDatabase) ListConnectionsByCanvas(userID, canvasID string) ([]models.Connection, error) {
	if err := db.checkCanvasAccess(userID, canvasID); err != nil {
		if errors.Is(err, ErrNoRows) || errors.Is(err, ErrForeignKey) {
			return nil, nil
		}
		return nil, err
	}
	endpoint := "/connections?canvas_id=eq." + url.QueryEscape(canvasID) + "&select=*&order=created_at.asc"
	data, err := db.makeRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rows []connectionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse connections response: %w", err)
	}
	result := make([]models.Connection, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toModel())
	}
	return result, nil
}

func (db *SupabaseDatabase) HealthCheck() error {
	_, err := db.makeRequest("GET", "/", nil)
	return err
}

func (db *SupabaseDatabase) Close() error {
	// nothing to release for an HTTP client
	return nil
}
