package database_test

import (
	"errors"
	"testing"

	"canvas-notes-backend/pkg/database"
	"canvas-notes-backend/pkg/models"
)

func seedCanvas(t *testing.T, db *database.MemoryDatabase, userID string) *models.Canvas {
	t.Helper()
	c := &models.Canvas{UserID: userID, Title: "Seed"}
	if err := db.CreateCanvas(c); err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}
	return c
}

func seedBlock(t *testing.T, db *database.MemoryDatabase, userID, canvasID string) *models.Block {
	t.Helper()
	b := &models.Block{
		CanvasID: canvasID,
		UserID:   userID,
		Type:     "text",
		Content:  map[string]interface{}{"text": "seed"},
		Size:     models.Size{Width: models.DefaultBlockWidth, Height: models.DefaultBlockHeight},
	}
	if err := db.CreateBlock(b); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	return b
}

func TestMemory_GetCanvas_ScopedToOwnerOrPublic(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")

	if _, err := db.GetCanvas("owner", c.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := db.GetCanvas("stranger", c.ID); !errors.Is(err, database.ErrNoRows) {
		t.Fatalf("stranger read: expected ErrNoRows, got %v", err)
	}

	if err := db.SetCanvasPublic(c.ID, true); err != nil {
		t.Fatalf("SetCanvasPublic: %v", err)
	}
	if _, err := db.GetCanvas("stranger", c.ID); err != nil {
		t.Fatalf("public read: %v", err)
	}
}

func TestMemory_CreateBlock_MissingCanvasIsForeignKey(t *testing.T) {
	db := database.NewMemoryDatabase()

	b := &models.Block{CanvasID: "nope", UserID: "owner", Type: "text"}
	if err := db.CreateBlock(b); !errors.Is(err, database.ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
}

func TestMemory_CreateBlock_PrivateCanvasScopedToOwner(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")

	b := &models.Block{CanvasID: c.ID, UserID: "stranger", Type: "text"}
	if err := db.CreateBlock(b); !errors.Is(err, database.ErrNoRows) {
		t.Fatalf("stranger insert on private canvas: expected ErrNoRows, got %v", err)
	}

	if err := db.SetCanvasPublic(c.ID, true); err != nil {
		t.Fatalf("SetCanvasPublic: %v", err)
	}
	if err := db.CreateBlock(b); err != nil {
		t.Fatalf("insert on public canvas: %v", err)
	}
}

func TestMemory_UpdateBlockPartial(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")
	b := seedBlock(t, db, "owner", c.ID)

	updated, err := db.UpdateBlockPartial("owner", b.ID, map[string]interface{}{
		"x": 7.0, "y": 8.0,
	})
	if err != nil {
		t.Fatalf("UpdateBlockPartial: %v", err)
	}
	if updated.Position.X != 7 || updated.Position.Y != 8 {
		t.Errorf("position not patched: %+v", updated.Position)
	}
	if updated.Content["text"] != "seed" {
		t.Errorf("content should be untouched by a position patch: %v", updated.Content)
	}

	if _, err := db.UpdateBlockPartial("stranger", b.ID, map[string]interface{}{"x": 1.0}); !errors.Is(err, database.ErrNoRows) {
		t.Fatalf("stranger patch: expected ErrNoRows, got %v", err)
	}
}

func TestMemory_ReturnedRowsAreCopies(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")
	b := seedBlock(t, db, "owner", c.ID)

	got, err := db.GetBlock("owner", b.ID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	got.Content["text"] = "mutated"

	again, err := db.GetBlock("owner", b.ID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if again.Content["text"] != "seed" {
		t.Error("mutating a returned row must not affect the store")
	}
}

func TestMemory_PatchedContentIsDetachedFromCaller(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")
	b := seedBlock(t, db, "owner", c.ID)

	patch := map[string]interface{}{"text": "patched"}
	if _, err := db.UpdateBlockPartial("owner", b.ID, map[string]interface{}{"content": patch}); err != nil {
		t.Fatalf("UpdateBlockPartial: %v", err)
	}
	patch["text"] = "mutated"

	got, err := db.GetBlock("owner", b.ID)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Content["text"] != "patched" {
		t.Errorf("mutating the patch map must not affect the store: %v", got.Content)
	}
}

func TestMemory_DeleteBlock_ReportsFalseNotError(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")
	b := seedBlock(t, db, "owner", c.ID)

	deleted, err := db.DeleteBlock("stranger", b.ID)
	if err != nil || deleted {
		t.Fatalf("stranger delete: expected (false, nil), got (%v, %v)", deleted, err)
	}

	deleted, err = db.DeleteBlock("owner", b.ID)
	if err != nil || !deleted {
		t.Fatalf("owner delete: expected (true, nil), got (%v, %v)", deleted, err)
	}

	deleted, err = db.DeleteBlock("owner", b.ID)
	if err != nil || deleted {
		t.Fatalf("repeat delete: expected (false, nil), got (%v, %v)", deleted, err)
	}
}

func TestMemory_ListingsKeepInsertionOrder(t *testing.T) {
	db := database.NewMemoryDatabase()
	c := seedCanvas(t, db, "owner")

	first := seedBlock(t, db, "owner", c.ID)
	second := seedBlock(t, db, "owner", c.ID)

	blocks, err := db.ListBlocksByCanvas("owner", c.ID)
	if err != nil {
		t.Fatalf("ListBlocksByCanvas: %v", err)
	}
	if len(blocks) != 2 || blocks[0].ID != first.ID || blocks[1].ID != second.ID {
		t.Errorf("listing order wrong: %v, %v", blocks[0].ID, blocks[1].ID)
	}
}
