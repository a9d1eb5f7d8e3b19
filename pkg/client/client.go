package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Position mirrors the wire shape of a block position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Block is the wire shape of a block as the GraphQL API returns it.
type Block struct {
	ID        string                 `json:"id"`
	CanvasID  string                 `json:"canvasId"`
	Type      string                 `json:"type"`
	Content   map[string]interface{} `json:"content"`
	Position  Position               `json:"position"`
	Notes     string                 `json:"notes"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Connection is the wire shape of a directed edge.
type Connection struct {
	ID            string `json:"id"`
	CanvasID      string `json:"canvasId"`
	SourceBlockID string `json:"sourceBlockId"`
	TargetBlockID string `json:"targetBlockId"`
	SourceHandle  string `json:"sourceHandle"`
	TargetHandle  string `json:"targetHandle"`
}

// Canvas is the wire shape of a canvas with its graph loaded.
type Canvas struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	IsPublic    bool         `json:"isPublic"`
	Blocks      []Block      `json:"blocks"`
	Connections []Connection `json:"connections"`
}

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions"`
}

func (e *GraphQLError) Error() string {
	return e.Message
}

// Code returns the machine-readable extensions.code, if present.
func (e *GraphQLError) Code() string {
	if e.Extensions == nil {
		return ""
	}
	code, _ := e.Extensions["code"].(string)
	return code
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Client talks GraphQL over HTTP POST with bearer auth.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint. The token is sent
// as a bearer credential on every request.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Do executes one GraphQL operation and decodes response data into out.
// The first server-reported error is returned as a *GraphQLError.
func (c *Client) Do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return &gqlResp.Errors[0]
	}

	if out != nil && gqlResp.Data != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}

	return nil
}

const canvasQuery = `query Canvas($id: ID!) {
  canvas(id: $id) {
    id
    title
    isPublic
    blocks {
      id canvasId type content notes createdAt
      position { x y }
    }
    connections {
      id canvasId sourceBlockId targetBlockId sourceHandle targetHandle
    }
  }
}`

// FetchCanvas loads a canvas with its full graph.
func (c *Client) FetchCanvas(ctx context.Context, canvasID string) (*Canvas, error) {
	var resp struct {
		Canvas *Canvas `json:"canvas"`
	}
	if err := c.Do(ctx, canvasQuery, map[string]interface{}{"id": canvasID}, &resp); err != nil {
		return nil, err
	}
	if resp.Canvas == nil {
		return nil, &GraphQLError{
			Message:    "canvas not found",
			Extensions: map[string]interface{}{"code": "NOT_FOUND"},
		}
	}
	return resp.Canvas, nil
}

const createBlockMutation = `mutation CreateBlock($canvasId: ID!, $type: String!, $position: PositionInput!, $content: JSON) {
  createBlock(canvasId: $canvasId, type: $type, position: $position, content: $content) {
    id canvasId type content notes createdAt
    position { x y }
  }
}`

// CreateBlock creates a block on the canvas.
func (c *Client) CreateBlock(ctx context.Context, canvasID, blockType string, pos Position, content map[string]interface{}) (*Block, error) {
	var resp struct {
		CreateBlock *Block `json:"createBlock"`
	}
	vars := map[string]interface{}{
		"canvasId": canvasID,
		"type":     blockType,
		"position": map[string]interface{}{"x": pos.X, "y": pos.Y},
		"content":  content,
	}
	if err := c.Do(ctx, createBlockMutation, vars, &resp); err != nil {
		return nil, err
	}
	return resp.CreateBlock, nil
}

const updateBlockPositionMutation = `mutation UpdateBlockPosition($blockId: ID!, $position: PositionInput!) {
  updateBlockPosition(blockId: $blockId, position: $position) {
    id
    position { x y }
  }
}`

// UpdateBlockPosition persists a block's position.
func (c *Client) UpdateBlockPosition(ctx context.Context, blockID string, pos Position) error {
	vars := map[string]interface{}{
		"blockId":  blockID,
		"position": map[string]interface{}{"x": pos.X, "y": pos.Y},
	}
	return c.Do(ctx, updateBlockPositionMutation, vars, nil)
}

const createConnectionMutation = `mutation CreateConnection($canvasId: ID!, $sourceBlockId: ID!, $targetBlockId: ID!, $sourceHandle: String, $targetHandle: String) {
  createConnection(canvasId: $canvasId, sourceBlockId: $sourceBlockId, targetBlockId: $targetBlockId, sourceHandle: $sourceHandle, targetHandle: $targetHandle) {
    id canvasId sourceBlockId targetBlockId sourceHandle targetHandle
  }
}`

// CreateConnection creates a directed edge between two blocks.
func (c *Client) CreateConnection(ctx context.Context, canvasID, sourceID, targetID, sourceHandle, targetHandle string) (*Connection, error) {
	var resp struct {
		CreateConnection *Connection `json:"createConnection"`
	}
	vars := map[string]interface{}{
		"canvasId":      canvasID,
		"sourceBlockId": sourceID,
		"targetBlockId": targetID,
		"sourceHandle":  sourceHandle,
		"targetHandle":  targetHandle,
	}
	if err := c.Do(ctx, createConnectionMutation, vars, &resp); err != nil {
		return nil, err
	}
	return resp.CreateConnection, nil
}

const deleteConnectionMutation = `mutation DeleteConnection($connectionId: ID!) {
  deleteConnection(connectionId: $connectionId)
}`

// DeleteConnection removes an edge by id.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	return c.Do(ctx, deleteConnectionMutation, map[string]interface{}{"connectionId": connectionID}, nil)
}

const undoBlockCreationMutation = `mutation UndoBlockCreation($blockId: ID!) {
  undoBlockCreation(blockId: $blockId)
}`

// UndoBlockCreation asks the server to retract a freshly created block.
// The result reports whether the block was actually removed.
func (c *Client) UndoBlockCreation(ctx context.Context, blockID string) (bool, error) {
	var resp struct {
		UndoBlockCreation bool `json:"undoBlockCreation"`
	}
	if err := c.Do(ctx, undoBlockCreationMutation, map[string]interface{}{"blockId": blockID}, &resp); err != nil {
		return false, err
	}
	return resp.UndoBlockCreation, nil
}
