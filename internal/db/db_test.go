package db

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"highlights", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	for _, col := range []string{"run_id", "source_video", "start_ms", "end_ms"} {
		var cols int
		err = database.Conn().QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info('highlights') WHERE name = ?", col,
		).Scan(&cols)
		if err != nil || cols != 1 {
			t.Errorf("highlights.%s missing: count=%d err=%v", col, cols, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestNew_InMemory(t *testing.T) {
	database, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	defer database.Close()

	if _, err := database.Conn().Exec(
		`INSERT INTO highlights (id, name, path, source_path, saved_at) VALUES ('h1', 'clip_1.mp4', '/h/clip_1.mp4', '/s/clip_1.mp4', datetime('now'))`,
	); err != nil {
		t.Fatalf("insert error = %v", err)
	}
}

func TestNew_InMemorySchemaVisibleToConcurrentQueries(t *testing.T) {
	database, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	defer database.Close()

	if got := database.Conn().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}

	var journalMode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if journalMode != "memory" {
		t.Errorf("journal_mode = %s, want memory", journalMode)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			if err := database.Conn().QueryRow("SELECT COUNT(*) FROM highlights").Scan(&n); err != nil {
				t.Errorf("query highlights: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestNew_DropsRowsForMissingHighlights(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	kept := filepath.Join(tmpDir, "clip_1.mp4")
	if err := os.WriteFile(kept, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	insert := `INSERT INTO highlights (id, name, path, source_path, saved_at) VALUES (?, ?, ?, '/s', datetime('now'))`
	if _, err := db1.Conn().Exec(insert, "h1", "clip_1.mp4", kept); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if _, err := db1.Conn().Exec(insert, "h2", "clip_2.mp4", filepath.Join(tmpDir, "clip_2.mp4")); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var names []string
	rows, err := db2.Conn().Query("SELECT name FROM highlights")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatal(err)
		}
		names = append(names, n)
	}
	if len(names) != 1 || names[0] != "clip_1.mp4" {
		t.Errorf("rows after reopen = %v, want [clip_1.mp4]", names)
	}
}
