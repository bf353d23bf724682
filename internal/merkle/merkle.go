package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/scanner"
)

// Diff reports the result of comparing two snapshots: which relative paths
// were added, modified (hash changed), or deleted.
type Diff struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the diff has no entries in any category.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Synchroniser is the C6 entry point: it walks a repo, hashes its files,
// and diffs the result against a persisted snapshot so an indexing run only
// touches what changed.
type Synchroniser struct {
	scanner  *scanner.Scanner
	stateDir string
}

// New builds a Synchroniser. cfg drives the same include/exclude rules the
// scanner applies when loading files for chunking, so "what counts as part
// of the tree" is consistent between change detection and indexing.
func New(cfg config.VectorStoreConfig, stateDir string) *Synchroniser {
	return &Synchroniser{
		scanner:  scanner.New(cfg),
		stateDir: stateDir,
	}
}

// snapshotPath resolves the deterministic snapshot file for repoRoot.
func (s *Synchroniser) snapshotPath(repoRoot string) (string, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve absolute repo path: %w", err)
	}
	return SnapshotPath(s.stateDir, abs), nil
}

// currentHashes walks repoRoot and returns each indexable file's
// relative path and SHA-256 content hash (spec.md §4.6 steps 2-3).
func (s *Synchroniser) currentHashes(repoRoot string) ([]FileHash, []models.FileInfo, error) {
	result, err := s.scanner.Scan(repoRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("scan repo: %w", err)
	}

	hashes := make([]FileHash, 0, len(result.Files))
	for _, f := range result.Files {
		sum := sha256.Sum256([]byte(f.Content))
		hashes = append(hashes, FileHash{
			Path: f.RelativePath,
			Hash: hex.EncodeToString(sum[:]),
		})
	}
	return hashes, result.Files, nil
}

// DetectChanges walks repoRoot, hashes its files, builds the current DAG,
// and diffs it against the persisted snapshot. A nil/missing snapshot
// means every file is reported as added (spec.md §4.6 step 1: "if any").
func (s *Synchroniser) DetectChanges(repoRoot string) (Diff, error) {
	path, err := s.snapshotPath(repoRoot)
	if err != nil {
		return Diff{}, err
	}

	prev, err := LoadSnapshot(path)
	if err != nil {
		return Diff{}, err
	}

	current, _, err := s.currentHashes(repoRoot)
	if err != nil {
		return Diff{}, err
	}

	currentDAG := BuildDAG(current)
	prevMap := prev.FileHashMap()

	if prev != nil {
		prevDAG, err := prev.DAG()
		if err == nil && prevDAG.RootHash() == currentDAG.RootHash() {
			return Diff{}, nil // unchanged tree, identical root identity
		}
	}

	currentMap := make(map[string]string, len(current))
	for _, f := range current {
		currentMap[f.Path] = f.Hash
	}

	var diff Diff
	for path, hash := range currentMap {
		prevHash, existed := prevMap[path]
		if !existed {
			diff.Added = append(diff.Added, path)
		} else if prevHash != hash {
			diff.Modified = append(diff.Modified, path)
		}
	}
	for path := range prevMap {
		if _, stillPresent := currentMap[path]; !stillPresent {
			diff.Deleted = append(diff.Deleted, path)
		}
	}
	return diff, nil
}

// SaveSnapshot re-walks repoRoot, recomputes hashes and the DAG, and
// atomically persists them, replacing whatever snapshot existed before.
func (s *Synchroniser) SaveSnapshot(repoRoot string) error {
	path, err := s.snapshotPath(repoRoot)
	if err != nil {
		return err
	}
	hashes, _, err := s.currentHashes(repoRoot)
	if err != nil {
		return err
	}
	return SaveSnapshot(path, hashes)
}

// LoadSnapshot returns the set of relative paths recorded in repoRoot's
// persisted snapshot, or nil if none exists.
func (s *Synchroniser) LoadSnapshot(repoRoot string) ([]string, error) {
	path, err := s.snapshotPath(repoRoot)
	if err != nil {
		return nil, err
	}
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	paths := make([]string, 0, len(snap.FileHashes))
	for _, pair := range snap.FileHashes {
		paths = append(paths, pair[0])
	}
	return paths, nil
}

// DeleteSnapshot removes repoRoot's persisted snapshot, if any.
func (s *Synchroniser) DeleteSnapshot(repoRoot string) error {
	path, err := s.snapshotPath(repoRoot)
	if err != nil {
		return err
	}
	return DeleteSnapshot(path)
}
