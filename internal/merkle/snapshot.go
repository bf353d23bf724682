package merkle

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the on-disk shape from spec.md §6: a flat file-hash list (kept
// alongside the DAG for quick diffing) plus the serialized DAG itself.
type Snapshot struct {
	FileHashes [][2]string `json:"fileHashes"`
	MerkleDAG  dagJSON     `json:"merkleDAG"`
}

// dagJSON mirrors DAG's shape but with nodes serialized as an ordered
// [id, node] list rather than a map, matching spec.md §6's
// `nodes: [[id, {...}], ...]` wire format.
type dagJSON struct {
	Nodes   [][2]interface{} `json:"nodes"`
	RootIDs []string         `json:"rootIds"`
}

func toDAGJSON(d *DAG) dagJSON {
	out := dagJSON{RootIDs: append([]string(nil), d.RootIDs...)}
	// Deterministic order: root first, then children in the order the root
	// lists them, so two builds of an identical tree serialize identically.
	seen := make(map[string]bool)
	emit := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if n, ok := d.Nodes[id]; ok {
			out.Nodes = append(out.Nodes, [2]interface{}{id, n})
		}
	}
	for _, rootID := range d.RootIDs {
		emit(rootID)
		if root, ok := d.Nodes[rootID]; ok {
			for _, childID := range root.Children {
				emit(childID)
			}
		}
	}
	for id := range d.Nodes {
		emit(id)
	}
	return out
}

func fromDAGJSON(dj dagJSON) (*DAG, error) {
	d := &DAG{Nodes: make(map[string]*Node, len(dj.Nodes)), RootIDs: dj.RootIDs}
	for _, pair := range dj.Nodes {
		id, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed dag node entry: %v", pair)
		}
		raw, err := json.Marshal(pair[1])
		if err != nil {
			return nil, fmt.Errorf("re-marshal dag node %q: %w", id, err)
		}
		var n Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("unmarshal dag node %q: %w", id, err)
		}
		d.Nodes[id] = &n
	}
	return d, nil
}

// SnapshotPath returns the deterministic per-repo snapshot file path: an
// MD5 hash of the absolute repo path, under stateDir. Ported from the
// teacher's getCachePath (SHA-256-of-path-keyed filename under a cache
// directory); spec.md §3/§6 specifies MD5 for this particular keying, so
// that's what this function uses — the file *content* (hashes) still uses
// SHA-256 per spec.md §4.6 step 3.
func SnapshotPath(stateDir, absRepoPath string) string {
	sum := md5.Sum([]byte(absRepoPath))
	filename := fmt.Sprintf("snapshot-%x.json", sum)
	return filepath.Join(stateDir, filename)
}

// SaveSnapshot writes files' hashes and the DAG built from them to path,
// atomically (write to a temp file in the same directory, then rename).
func SaveSnapshot(path string, files []FileHash) error {
	dag := BuildDAG(files)

	snap := Snapshot{
		FileHashes: make([][2]string, len(files)),
		MerkleDAG:  toDAGJSON(dag),
	}
	for i, f := range files {
		snap.FileHashes[i] = [2]string{f.Path, f.Hash}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing or corrupt file is
// reported as (nil, nil) — spec.md §4.11 treats both as "no snapshot"
// rather than an error.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

// DeleteSnapshot removes the snapshot file at path. Deleting a missing
// snapshot is not an error.
func DeleteSnapshot(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// FileHashMap returns the snapshot's file hashes as a path->hash map, or an
// empty map for a nil snapshot.
func (s *Snapshot) FileHashMap() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, pair := range s.FileHashes {
		out[pair[0]] = pair[1]
	}
	return out
}

// DAG reconstructs the in-memory DAG from the snapshot's wire shape.
func (s *Snapshot) DAG() (*DAG, error) {
	if s == nil {
		return nil, nil
	}
	return fromDAGJSON(s.MerkleDAG)
}
