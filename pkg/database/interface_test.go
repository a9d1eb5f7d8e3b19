package database_test

import (
	"path/filepath"
	"testing"

	"canvas-notes-backend/pkg/database"
)

func TestNewDatabase_LocalOverrideWinsOverHostedCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvas.db")

	db, err := database.NewDatabase(database.DatabaseConfig{
		SupabaseURL: "https://example.supabase.co",
		SupabaseKey: "service-key",
		SQLitePath:  path,
		UseLocalDB:  true,
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer db.Close()

	if _, ok := db.(*database.SQLiteDatabase); !ok {
		t.Fatalf("expected SQLite backend, got %T", db)
	}
}

func TestNewDatabase_HostedCredentialsWinWithoutOverride(t *testing.T) {
	db, err := database.NewDatabase(database.DatabaseConfig{
		SupabaseURL: "https://example.supabase.co",
		SupabaseKey: "service-key",
		SQLitePath:  filepath.Join(t.TempDir(), "canvas.db"),
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer db.Close()

	if _, ok := db.(*database.SupabaseDatabase); !ok {
		t.Fatalf("expected Supabase backend, got %T", db)
	}
}
