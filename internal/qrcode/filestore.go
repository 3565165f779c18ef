package qrcode

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hours_qr_cache_hits_total",
		Help: "Number of QR image reads served from memory.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hours_qr_cache_misses_total",
		Help: "Number of QR image reads that went to disk.",
	})
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileName returns the artifact name for a unit. It embeds the unit id and
// code for traceability only.
func FileName(unitID int64, code string) string {
	return fmt.Sprintf("unit_%d_%s.png", unitID, unsafeChars.ReplaceAllString(code, "_"))
}

// FileStore keeps QR images on disk under a single directory.
type FileStore struct {
	dir   string
	cache *expirable.LRU[string, []byte]
}

// NewFileStore creates the directory if needed. cacheSize bounds the number
// of images kept in memory for ttl after they were last written or read.
func NewFileStore(dir string, cacheSize int, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create qr directory %s: %w", dir, err)
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &FileStore{
		dir:   dir,
		cache: expirable.NewLRU[string, []byte](cacheSize, nil, ttl),
	}, nil
}

// Dir returns the root directory of the store.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Save writes data as name, replacing any previous file atomically:
// temp file, fsync, rename. It returns the path relative to the store root.
func (fs *FileStore) Save(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	fullPath := filepath.Join(fs.dir, name)

	// Concurrent saves of the same name each get their own temp file.
	f, err := os.CreateTemp(fs.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write qr image: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to fsync qr image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close qr image: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename qr image: %w", err)
	}

	fs.cache.Add(name, data)
	return name, nil
}

// Exists reports whether the named image is present on disk.
func (fs *FileStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(fs.dir, filepath.Base(name)))
	return err == nil && !info.IsDir()
}

// Read returns the image bytes, from memory when possible.
func (fs *FileStore) Read(name string) ([]byte, error) {
	if data, ok := fs.cache.Get(name); ok {
		cacheHitsTotal.Inc()
		return data, nil
	}
	cacheMissesTotal.Inc()

	data, err := os.ReadFile(filepath.Join(fs.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read qr image %s: %w", name, err)
	}
	fs.cache.Add(name, data)
	return data, nil
}

// Remove deletes the image from disk and memory. A missing file is not an error.
func (fs *FileStore) Remove(name string) error {
	fs.cache.Remove(name)
	if err := os.Remove(filepath.Join(fs.dir, filepath.Base(name))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove qr image %s: %w", name, err)
	}
	return nil
}
