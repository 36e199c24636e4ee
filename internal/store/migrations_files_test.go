package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsArePaired(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_[a-z_]+\.(up|down)\.sql$`)
	byVersion := map[string]map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Errorf("unexpected file in migrations dir: %s", entry.Name())
			continue
		}
		if byVersion[match[1]] == nil {
			byVersion[match[1]] = map[string]string{}
		}
		if prev, dup := byVersion[match[1]][match[2]]; dup {
			t.Fatalf("version %s has two %s files: %s and %s", match[1], match[2], prev, entry.Name())
		}
		byVersion[match[1]][match[2]] = entry.Name()
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if dirs["up"] == "" || dirs["down"] == "" {
			t.Errorf("version %s must include both up and down files, got %v", version, dirs)
		}
	}
}

func TestPendingCandidatesSkipsDownFiles(t *testing.T) {
	versions, err := pendingCandidates(os.DirFS(migrationsDir))
	if err != nil {
		t.Fatalf("pendingCandidates: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no up migrations found")
	}
	for i, v := range versions {
		if filepath.Ext(v) != ".sql" || !regexp.MustCompile(`\.up\.sql$`).MatchString(v) {
			t.Errorf("versions[%d] = %q, want an up migration", i, v)
		}
		if i > 0 && versions[i-1] >= v {
			t.Errorf("versions not sorted: %q before %q", versions[i-1], v)
		}
	}
}
