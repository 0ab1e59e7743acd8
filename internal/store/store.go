package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	arrayFile = "deviation.txt"
	metaFile  = "metadata.json"

	dirPrefix = "kic_"
)

// ErrNotFound is returned when no ResultSet exists for the requested target.
var ErrNotFound = errors.New("store: target not found")

// Metadata is the per-batch record persisted next to the deviation array.
// It is computed once at batch completion and immutable thereafter.
type Metadata struct {
	KICNumber      int     `json:"kic_number"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
	SkippedFiles   int     `json:"skipped_files"`
	TimeBinSize    float64 `json:"time_bin_size"`
}

// ResultSet is the persisted pair for one target.
type ResultSet struct {
	Array []float64
	Meta  Metadata
}

// Store reads and writes ResultSets under a fixed root directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Save atomically writes the deviation array and metadata for id, replacing
// any prior ResultSet. Both files are staged in a temporary directory first
// and swapped into place with a rename.
func (s *Store) Save(id int, array []float64, meta Metadata) error {
	tmp, err := os.MkdirTemp(s.root, "."+dirPrefix+strconv.Itoa(id)+"-")
	if err != nil {
		return fmt.Errorf("store: stage dir: %w", err)
	}
	defer os.RemoveAll(tmp) // no-op after a successful rename

	if err := writeArray(filepath.Join(tmp, arrayFile), array); err != nil {
		return err
	}
	if err := writeMeta(filepath.Join(tmp, metaFile), meta); err != nil {
		return err
	}

	dir := s.dir(id)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("store: clear %q: %w", dir, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("store: swap in %q: %w", dir, err)
	}
	return nil
}

// Load reads the ResultSet for id. Returns ErrNotFound if absent.
func (s *Store) Load(id int) (*ResultSet, error) {
	dir := s.dir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("store: kic %d: %w", id, ErrNotFound)
	}

	array, err := readArray(filepath.Join(dir, arrayFile))
	if err != nil {
		return nil, err
	}
	meta, err := readMeta(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, err
	}
	return &ResultSet{Array: array, Meta: *meta}, nil
}

// Exists reports whether a ResultSet directory exists for id.
func (s *Store) Exists(id int) bool {
	_, err := os.Stat(s.dir(id))
	return err == nil
}

// Delete removes the entire ResultSet directory for id as one operation.
// Returns ErrNotFound if no directory exists.
func (s *Store) Delete(id int) error {
	dir := s.dir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("store: kic %d: %w", id, ErrNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("store: delete %q: %w", dir, err)
	}
	return nil
}

// List returns the sorted ids of all stored targets. Entries whose directory
// name does not parse as kic_<positive int> are skipped, not errors.
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: scan root: %w", err)
	}

	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(e.Name(), dirPrefix)
		if !ok {
			continue
		}
		id, err := strconv.Atoi(rest)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *Store) dir(id int) string {
	return filepath.Join(s.root, dirPrefix+strconv.Itoa(id))
}

func writeMeta(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("store: write metadata: %w", err)
	}
	return nil
}

func readMeta(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("store: parse metadata %q: %w", path, err)
	}
	return &meta, nil
}
