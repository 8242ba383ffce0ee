package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

var ErrNotFound = errors.New("snapshot not found")

// Store retrieves mesh snapshots by name.
type Store interface {
	Get(ctx context.Context, name string) (mesh.Snapshot, error)
}

// FileStore reads snapshot payloads from JSON files on disk.
type FileStore struct {
	dir          string
	fallbackFile string
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(dir, fallbackFile string) *FileStore {
	return &FileStore{dir: dir, fallbackFile: fallbackFile}
}

// Dir returns the directory snapshots are read from.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get loads a named snapshot, falling back to the default payload when configured.
func (s *FileStore) Get(_ context.Context, name string) (mesh.Snapshot, error) {
	if !ValidName(name) {
		return mesh.Snapshot{}, fmt.Errorf("invalid snapshot name %q", name)
	}

	primary := filepath.Join(s.dir, fmt.Sprintf("%s.json", name))
	payload, err := loadSnapshot(primary)
	if err == nil {
		if payload.Metadata.Name == "" {
			payload.Metadata.Name = name
		}
		return payload, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return mesh.Snapshot{}, err
	}

	if s.fallbackFile == "" {
		return mesh.Snapshot{}, ErrNotFound
	}

	fallback := filepath.Join(s.dir, s.fallbackFile)
	payload, err = loadSnapshot(fallback)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mesh.Snapshot{}, ErrNotFound
		}
		return mesh.Snapshot{}, err
	}

	if payload.Metadata.Name == "" {
		payload.Metadata.Name = name
	}
	return payload, nil
}

// ValidName reports whether name can address a snapshot file.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// LoadFile reads a single snapshot document.
func LoadFile(path string) (mesh.Snapshot, error) {
	return loadSnapshot(path)
}

func loadSnapshot(path string) (mesh.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mesh.Snapshot{}, err
	}

	var payload mesh.Snapshot
	if err := json.Unmarshal(data, &payload); err != nil {
		return mesh.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	return payload, nil
}
