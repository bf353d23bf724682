package merkle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
)

func writeRepoFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
}

func TestBuildDAGRootIdentityDeterministic(t *testing.T) {
	a := []FileHash{{Path: "b.go", Hash: "h2"}, {Path: "a.go", Hash: "h1"}}
	b := []FileHash{{Path: "a.go", Hash: "h1"}, {Path: "b.go", Hash: "h2"}}

	dagA := BuildDAG(a)
	dagB := BuildDAG(b)

	if dagA.RootHash() != dagB.RootHash() {
		t.Error("expected root identity to be independent of input order (files are sorted by path)")
	}

	c := []FileHash{{Path: "a.go", Hash: "h1-changed"}, {Path: "b.go", Hash: "h2"}}
	if BuildDAG(c).RootHash() == dagA.RootHash() {
		t.Error("expected root identity to change when a file hash changes")
	}
}

func TestSaveAndLoadSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")

	files := []FileHash{{Path: "a.go", Hash: "h1"}, {Path: "b.go", Hash: "h2"}}
	if err := SaveSnapshot(path, files); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot, got nil")
	}

	hashMap := snap.FileHashMap()
	if hashMap["a.go"] != "h1" || hashMap["b.go"] != "h2" {
		t.Errorf("unexpected file hash map: %v", hashMap)
	}

	dag, err := snap.DAG()
	if err != nil {
		t.Fatalf("DAG: %v", err)
	}
	if dag.RootHash() != BuildDAG(files).RootHash() {
		t.Error("round-tripped DAG should have the same root identity as the original")
	}
}

func TestLoadSnapshotMissingFileReturnsNil(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("expected no error for a missing snapshot, got %v", err)
	}
	if snap != nil {
		t.Error("expected nil snapshot for a missing file")
	}
}

func TestLoadSnapshotCorruptFileTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("expected corrupt snapshot to be treated as missing, got error: %v", err)
	}
	if snap != nil {
		t.Error("expected nil snapshot for corrupt JSON")
	}
}

func TestSynchroniserDetectChangesFirstRunReportsAllAdded(t *testing.T) {
	repo := t.TempDir()
	state := t.TempDir()
	writeRepoFiles(t, repo, map[string]string{
		"a.go": "package a",
		"b.go": "package b",
	})

	sync := New(config.Defaults(), state)
	diff, err := sync.DetectChanges(repo)
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	if len(diff.Added) != 2 || len(diff.Modified) != 0 || len(diff.Deleted) != 0 {
		t.Errorf("expected 2 added files on first run, got %+v", diff)
	}
}

func TestSynchroniserDetectChangesUnchangedTreeIsEmpty(t *testing.T) {
	repo := t.TempDir()
	state := t.TempDir()
	writeRepoFiles(t, repo, map[string]string{"a.go": "package a"})

	sync := New(config.Defaults(), state)
	if err := sync.SaveSnapshot(repo); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	diff, err := sync.DetectChanges(repo)
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("expected no changes on an unchanged tree, got %+v", diff)
	}
}

func TestSynchroniserDetectChangesAddedModifiedDeleted(t *testing.T) {
	repo := t.TempDir()
	state := t.TempDir()
	writeRepoFiles(t, repo, map[string]string{
		"keep.go":   "package keep",
		"modify.go": "package modify // v1",
		"remove.go": "package remove",
	})

	sync := New(config.Defaults(), state)
	if err := sync.SaveSnapshot(repo); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if err := os.Remove(filepath.Join(repo, "remove.go")); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "modify.go"), []byte("package modify // v2"), 0644); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "new.go"), []byte("package new"), 0644); err != nil {
		t.Fatalf("add file: %v", err)
	}

	diff, err := sync.DetectChanges(repo)
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	if len(diff.Added) != 1 || diff.Added[0] != "new.go" {
		t.Errorf("expected new.go added, got %v", diff.Added)
	}
	if len(diff.Modified) != 1 || diff.Modified[0] != "modify.go" {
		t.Errorf("expected modify.go modified, got %v", diff.Modified)
	}
	if len(diff.Deleted) != 1 || diff.Deleted[0] != "remove.go" {
		t.Errorf("expected remove.go deleted, got %v", diff.Deleted)
	}
}

func TestSynchroniserSnapshotPathDeterministic(t *testing.T) {
	repo := t.TempDir()
	state := t.TempDir()
	writeRepoFiles(t, repo, map[string]string{"a.go": "package a"})

	sync := New(config.Defaults(), state)
	p1, err := sync.snapshotPath(repo)
	if err != nil {
		t.Fatalf("snapshotPath: %v", err)
	}
	p2, err := sync.snapshotPath(repo)
	if err != nil {
		t.Fatalf("snapshotPath: %v", err)
	}
	if p1 != p2 {
		t.Errorf("expected a deterministic snapshot path, got %q and %q", p1, p2)
	}
}

func TestSynchroniserDeleteSnapshot(t *testing.T) {
	repo := t.TempDir()
	state := t.TempDir()
	writeRepoFiles(t, repo, map[string]string{"a.go": "package a"})

	sync := New(config.Defaults(), state)
	if err := sync.SaveSnapshot(repo); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := sync.DeleteSnapshot(repo); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}

	paths, err := sync.LoadSnapshot(repo)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if paths != nil {
		t.Errorf("expected no snapshot after delete, got %v", paths)
	}

	// deleting an already-absent snapshot is not an error
	if err := sync.DeleteSnapshot(repo); err != nil {
		t.Errorf("expected deleting a missing snapshot to be a no-op, got %v", err)
	}
}
