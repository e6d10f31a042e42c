package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesAreSorted(t *testing.T) {
	files, err := migrationFiles(migrationsDir, ".up.sql")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(files) < 3 {
		t.Fatalf("expected at least 3 up migrations, got %d", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Fatalf("migrations out of order: %s before %s", files[i-1], files[i])
		}
	}
}

func TestCorrectionDecisionsMigrationDefinesImmutabilityGuard(t *testing.T) {
	body, err := os.ReadFile(filepath.Join(migrationsDir, "0003_correction_decisions.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(body)
	for _, snippet := range []string{
		"CREATE TABLE IF NOT EXISTS correction_decisions",
		"correction_decisions_immutable_guard",
		"BEFORE UPDATE ON correction_decisions",
		"BEFORE DELETE ON correction_decisions",
		"object_not_in_prerequisite_state",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Errorf("migration is missing %q", snippet)
		}
	}
}

func TestDocumentsMigrationDefinesSearchVector(t *testing.T) {
	body, err := os.ReadFile(filepath.Join(migrationsDir, "0001_documents.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, snippet := range []string{"search_vector", "USING GIN"} {
		if !strings.Contains(string(body), snippet) {
			t.Errorf("migration is missing %q", snippet)
		}
	}
}
