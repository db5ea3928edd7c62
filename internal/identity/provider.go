package identity

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Provider hands out the client identity.
type Provider struct {
	kv     KV
	logger *slog.Logger
	newID  func() string

	mu sync.Mutex
}

// NewProvider creates a provider over kv.
func NewProvider(kv KV, logger *slog.Logger) *Provider {
	return &Provider{
		kv:     kv,
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// GetOrCreateID returns the persisted identity, generating and storing one on
// first use. When storage fails the caller still gets a usable id, fresh on
// every call.
func (p *Provider) GetOrCreateID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok, err := p.kv.Get(KeyUserID)
	if err == nil && ok && existing != "" {
		return existing
	}
	if err != nil {
		p.logger.Warn("identity storage unavailable, using ephemeral id", "error", err)
		return p.newID()
	}

	id := p.newID()
	if err := p.kv.Set(KeyUserID, id); err != nil {
		p.logger.Warn("failed to persist identity", "error", err)
	}
	return id
}

// LikedSet is the identity-scoped set of liked letter ids. The whole set is
// written back after each mutation under one lock, so concurrent toggles never
// interleave partial writes.
type LikedSet struct {
	kv     KV
	logger *slog.Logger

	mu  sync.RWMutex
	ids []string
}

// LoadLikedSet reads the set from kv. A missing or unreadable value starts empty.
func LoadLikedSet(kv KV, logger *slog.Logger) *LikedSet {
	s := &LikedSet{kv: kv, logger: logger, ids: []string{}}

	raw, ok, err := kv.Get(KeyLikedLetters)
	if err != nil {
		logger.Warn("failed to read liked letters", "error", err)
		return s
	}
	if !ok || raw == "" {
		return s
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logger.Warn("discarding malformed liked letters", "error", err)
		return s
	}
	for _, id := range ids {
		if id != "" && !slices.Contains(s.ids, id) {
			s.ids = append(s.ids, id)
		}
	}
	return s
}

// Has reports membership.
func (s *LikedSet) Has(letterID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ids, letterID)
}

// Set adds or removes letterID and persists the result. Returns false when
// membership already matched.
func (s *LikedSet) Set(letterID string, liked bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	has := slices.Contains(s.ids, letterID)
	switch {
	case liked && !has:
		s.ids = append(s.ids, letterID)
	case !liked && has:
		s.ids = slices.DeleteFunc(s.ids, func(id string) bool { return id == letterID })
	default:
		return false
	}
	s.persistLocked()
	return true
}

// Add marks letterID as liked.
func (s *LikedSet) Add(letterID string) bool { return s.Set(letterID, true) }

// Remove unmarks letterID.
func (s *LikedSet) Remove(letterID string) bool { return s.Set(letterID, false) }

// IDs returns a copy of the members in insertion order.
func (s *LikedSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

func (s *LikedSet) persistLocked() {
	raw, err := json.Marshal(s.ids)
	if err != nil {
		s.logger.Warn("failed to encode liked letters", "error", err)
		return
	}
	if err := s.kv.Set(KeyLikedLetters, string(raw)); err != nil {
		s.logger.Warn("failed to persist liked letters", "error", err)
	}
}
