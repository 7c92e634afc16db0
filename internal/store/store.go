package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store manages a content-addressable archive of history captures.
type Store struct {
	baseDir     string
	capturesDir string
	metadataDir string
	indexPath   string
}

// Index contains quick lookup information for all captures.
type Index struct {
	Captures  map[string]IndexEntry `json:"captures"` // hash -> entry
	UpdatedAt time.Time             `json:"updated_at"`
}

// IndexEntry contains summary info for quick listing.
type IndexEntry struct {
	DeviceMAC   string    `json:"device_mac"`
	RecordCount int       `json:"record_count"`
	FirstTime   time.Time `json:"first_time,omitempty"`
	LastTime    time.Time `json:"last_time,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultPath returns the default store path (~/.ruuvitool/store).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ruuvitool", "store"), nil
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	s := &Store{
		baseDir:     path,
		capturesDir: filepath.Join(path, "captures"),
		metadataDir: filepath.Join(path, "metadata"),
		indexPath:   filepath.Join(path, "index.json"),
	}

	if err := os.MkdirAll(s.capturesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create captures dir: %w", err)
	}
	if err := os.MkdirAll(s.metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata dir: %w", err)
	}

	return s, nil
}

// OpenDefault opens the store at the default path.
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Import adds a capture to the store. If the capture already exists (same
// hash), it only records the new source. Returns the hash and whether it
// was new.
func (s *Store) Import(raw []byte, info CaptureInfo, source Source) (string, bool, error) {
	hash := ContentHash(info.DeviceMAC, raw)

	capturePath := filepath.Join(s.capturesDir, hashToFilename(hash)+".bin")
	metaPath := filepath.Join(s.metadataDir, hashToFilename(hash)+".json")

	isNew := false
	var meta *Metadata

	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		isNew = true
		meta = ExtractMetadata(raw, info, hash)
		meta.Sources = []Source{source}

		if err := os.WriteFile(capturePath, raw, 0644); err != nil {
			return "", false, fmt.Errorf("failed to write capture: %w", err)
		}
	} else {
		metaData, err := os.ReadFile(metaPath)
		if err != nil {
			return "", false, fmt.Errorf("failed to read metadata: %w", err)
		}
		meta = &Metadata{}
		if err := json.Unmarshal(metaData, meta); err != nil {
			return "", false, fmt.Errorf("failed to parse metadata: %w", err)
		}
		meta.Sources = append(meta.Sources, source)
		meta.UpdatedAt = time.Now()
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", false, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := s.updateIndex(hash, meta); err != nil {
		return "", false, fmt.Errorf("failed to update index: %w", err)
	}

	return hash, isNew, nil
}

// Get retrieves capture data by hash.
func (s *Store) Get(hash string) ([]byte, error) {
	capturePath := filepath.Join(s.capturesDir, hashToFilename(hash)+".bin")
	return os.ReadFile(capturePath)
}

// GetMetadata retrieves capture metadata by hash.
func (s *Store) GetMetadata(hash string) (*Metadata, error) {
	metaPath := filepath.Join(s.metadataDir, hashToFilename(hash)+".json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// List returns all captures sorted newest first.
func (s *Store) List() ([]IndexEntry, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(index.Captures))
	for _, entry := range index.Captures {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// ListWithHashes returns all captures with their hashes.
func (s *Store) ListWithHashes() (map[string]IndexEntry, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return index.Captures, nil
}

// Resolve matches a full hash, short hash, or bare hex prefix to a stored
// capture.
func (s *Store) Resolve(ref string) (string, error) {
	captures, err := s.ListWithHashes()
	if err != nil {
		return "", err
	}
	for hash := range captures {
		if hash == ref || ShortHash(hash) == ref || strings.HasPrefix(hash[7:], ref) {
			return hash, nil
		}
	}
	return "", fmt.Errorf("capture not found: %s", ref)
}

// Export writes a capture's raw buffer to a file.
func (s *Store) Export(hash, destPath string) error {
	data, err := s.Get(hash)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0644)
}

// Count returns the number of captures in the store.
func (s *Store) Count() (int, error) {
	index, err := s.loadIndex()
	if err != nil {
		return 0, err
	}
	return len(index.Captures), nil
}

func (s *Store) loadIndex() (*Index, error) {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return &Index{Captures: make(map[string]IndexEntry)}, nil
	}
	if err != nil {
		return nil, err
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	if index.Captures == nil {
		index.Captures = make(map[string]IndexEntry)
	}
	return &index, nil
}

func (s *Store) updateIndex(hash string, meta *Metadata) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	index.Captures[hash] = IndexEntry{
		DeviceMAC:   meta.DeviceMAC,
		RecordCount: meta.RecordCount,
		FirstTime:   meta.FirstTime,
		LastTime:    meta.LastTime,
		CreatedAt:   meta.CreatedAt,
	}
	index.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath, data, 0644)
}

// hashToFilename converts a full hash to a safe filename.
func hashToFilename(hash string) string {
	if strings.HasPrefix(hash, "sha256:") {
		return hash[7:]
	}
	return hash
}
