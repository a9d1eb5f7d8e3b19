package gql_test

import (
	"context"
	"testing"

	"canvas-notes-backend/pkg/database"
	"canvas-notes-backend/pkg/gql"
	"canvas-notes-backend/pkg/middleware"
	"canvas-notes-backend/pkg/models"
	"canvas-notes-backend/pkg/service"

	"github.com/graphql-go/graphql"
)

const testUser = "user-1"

func newSchema(t *testing.T) (graphql.Schema, *service.GraphService) {
	t.Helper()
	svc := service.NewGraphService(database.NewMemoryDatabase())
	schema, err := gql.NewSchema(svc)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema, svc
}

func authedContext(userID string) context.Context {
	return context.WithValue(context.Background(),
		middleware.UserContextKey, &models.User{ID: userID})
}

func execute(t *testing.T, schema graphql.Schema, ctx context.Context, query string, vars map[string]interface{}) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: vars,
		Context:        ctx,
	})
}

func errorCode(t *testing.T, result *graphql.Result) string {
	t.Helper()
	if len(result.Errors) == 0 {
		t.Fatal("expected a GraphQL error")
	}
	code, _ := result.Errors[0].Extensions["code"].(string)
	return code
}

func TestCreateCanvas_DefaultTitleOnTheWire(t *testing.T) {
	schema, _ := newSchema(t)

	result := execute(t, schema, authedContext(testUser),
		`mutation { createCanvas { id title isPublic } }`, nil)
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	data := result.Data.(map[string]interface{})
	canvas := data["createCanvas"].(map[string]interface{})
	if canvas["title"] != "Untitled Canvas" {
		t.Errorf("expected default title, got %v", canvas["title"])
	}
	if canvas["isPublic"] != false {
		t.Errorf("new canvas should be private, got %v", canvas["isPublic"])
	}
}

func TestUnauthenticatedCode(t *testing.T) {
	schema, _ := newSchema(t)

	result := execute(t, schema, context.Background(),
		`mutation { createCanvas { id } }`, nil)
	if code := errorCode(t, result); code != "UNAUTHENTICATED" {
		t.Errorf("expected UNAUTHENTICATED, got %q", code)
	}
}

func TestCanvasQuery_NestedGraph(t *testing.T) {
	schema, svc := newSchema(t)

	c, err := svc.CreateCanvas(testUser, "Graph")
	if err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}
	src, err := svc.CreateBlock(testUser, c.ID, "text", models.Position{X: 1, Y: 2},
		map[string]interface{}{"text": "a"})
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	dst, err := svc.CreateBlock(testUser, c.ID, "link", models.Position{X: 3, Y: 4},
		map[string]interface{}{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if _, err := svc.CreateConnection(testUser, c.ID, src.ID, dst.ID, "right", "left"); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}

	result := execute(t, schema, authedContext(testUser), `query Canvas($id: ID!) {
		canvas(id: $id) {
			id title
			blocks { id type content position { x y } size { width height } }
			connections { id sourceBlockId targetBlockId sourceHandle }
		}
	}`, map[string]interface{}{"id": c.ID})
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	data := result.Data.(map[string]interface{})
	canvas := data["canvas"].(map[string]interface{})
	blocks := canvas["blocks"].([]interface{})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	first := blocks[0].(map[string]interface{})
	size := first["size"].(map[string]interface{})
	if size["width"] != models.DefaultBlockWidth || size["height"] != models.DefaultBlockHeight {
		t.Errorf("expected default size on the wire, got %v", size)
	}
	content := first["content"].(map[string]interface{})
	if content["text"] != "a" {
		t.Errorf("content should pass through unchanged, got %v", content)
	}

	connections := canvas["connections"].([]interface{})
	if len(connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(connections))
	}
	conn := connections[0].(map[string]interface{})
	if conn["sourceBlockId"] != src.ID || conn["targetBlockId"] != dst.ID {
		t.Errorf("connection endpoints wrong: %v", conn)
	}
}

func TestCanvasQuery_ForeignCanvasIsNull(t *testing.T) {
	schema, svc := newSchema(t)

	c, err := svc.CreateCanvas("someone-else", "Private")
	if err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}

	result := execute(t, schema, authedContext(testUser),
		`query Canvas($id: ID!) { canvas(id: $id) { id } }`,
		map[string]interface{}{"id": c.ID})

	if code := errorCode(t, result); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %q", code)
	}
}

func TestUpdateBlockContent_NullRejectedOnTheWire(t *testing.T) {
	schema, svc := newSchema(t)

	c, err := svc.CreateCanvas(testUser, "Canvas")
	if err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}
	b, err := svc.CreateBlock(testUser, c.ID, "text", models.Position{}, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}

	// content omitted entirely: the schema accepts it, the service
	// rejects it as BAD_USER_INPUT.
	result := execute(t, schema, authedContext(testUser),
		`mutation Update($blockId: ID!) { updateBlockContent(blockId: $blockId) { id } }`,
		map[string]interface{}{"blockId": b.ID})

	if code := errorCode(t, result); code != "BAD_USER_INPUT" {
		t.Errorf("expected BAD_USER_INPUT, got %q", code)
	}
}

func TestUndoBlockCreation_OnTheWire(t *testing.T) {
	schema, svc := newSchema(t)

	c, err := svc.CreateCanvas(testUser, "Canvas")
	if err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}
	b, err := svc.CreateBlock(testUser, c.ID, "text", models.Position{}, nil)
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}

	result := execute(t, schema, authedContext(testUser),
		`mutation Undo($blockId: ID!) { undoBlockCreation(blockId: $blockId) }`,
		map[string]interface{}{"blockId": b.ID})
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	data := result.Data.(map[string]interface{})
	if data["undoBlockCreation"] != true {
		t.Errorf("expected true, got %v", data["undoBlockCreation"])
	}

	// A second undo finds nothing and reports false without an error.
	result = execute(t, schema, authedContext(testUser),
		`mutation Undo($blockId: ID!) { undoBlockCreation(blockId: $blockId) }`,
		map[string]interface{}{"blockId": b.ID})
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	data = result.Data.(map[string]interface{})
	if data["undoBlockCreation"] != false {
		t.Errorf("expected false, got %v", data["undoBlockCreation"])
	}
}

func TestDeleteConnection_UnknownIsNotFound(t *testing.T) {
	schema, _ := newSchema(t)

	result := execute(t, schema, authedContext(testUser),
		`mutation { deleteConnection(connectionId: "no-such-id") }`, nil)
	if code := errorCode(t, result); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %q", code)
	}
}
