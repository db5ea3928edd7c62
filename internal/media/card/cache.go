package card

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotCached is returned by Get when no card is stored for the id.
var ErrNotCached = errors.New("card not cached")

// Cache keeps rendered cards on disk, one PNG per letter.
// Safe for concurrent use.
type Cache struct {
	basePath string
	mu       sync.RWMutex
}

// NewCache stores cards in {basePath}/cards.
func NewCache(basePath string) (*Cache, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	dir := filepath.Join(basePath, "cards")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cards directory: %w", err)
	}

	return &Cache{basePath: dir}, nil
}

// Save stores the PNG for a letter, replacing any earlier one.
func (c *Cache) Save(id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if len(data) == 0 {
		return fmt.Errorf("card data cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp := c.Path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write card file: %w", err)
	}
	if err := os.Rename(tmp, c.Path(id)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit card file: %w", err)
	}
	return nil
}

// Get returns the stored PNG, or ErrNotCached.
func (c *Cache) Get(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("ID cannot be empty")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("read card file: %w", err)
	}
	return data, nil
}

// Delete removes a stored card. Missing cards are not an error.
func (c *Cache) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete card file: %w", err)
	}
	return nil
}

// Path returns the file path for a letter's card.
func (c *Cache) Path(id string) string {
	return filepath.Join(c.basePath, id+".png")
}

// ETag computes a strong validator for card bytes.
func ETag(data []byte) string {
	return fmt.Sprintf(`"%x"`, sha256.Sum256(data))
}
