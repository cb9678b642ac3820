// Package settings persists the journal classification used by the
// reconciliation engine, so operators can adjust it without redeploying.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/payrec/payrec/internal/platform/blob"
	"github.com/payrec/payrec/internal/platform/httpx"
)

const journalsBlob = "journals.json"

// Journals lists the journal codes that mark an entry as a purchase or a
// bank movement. Codes are compared exactly, after trimming.
type Journals struct {
	Purchase []string `json:"purchase"`
	Bank     []string `json:"bank"`
}

func (j Journals) validate() error {
	if len(j.Purchase) == 0 {
		return fmt.Errorf("%w: at least one purchase journal required", httpx.ErrValidation)
	}
	if len(j.Bank) == 0 {
		return fmt.Errorf("%w: at least one bank journal required", httpx.ErrValidation)
	}
	for _, code := range append(append([]string{}, j.Purchase...), j.Bank...) {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("%w: journal codes must not be blank", httpx.ErrValidation)
		}
	}
	return nil
}

// Service loads and stores the journal configuration. Reads after the first
// one are served from memory.
type Service struct {
	store    *blob.Store
	log      *slog.Logger
	defaults Journals

	mu     sync.RWMutex
	cached *Journals
}

func NewService(store *blob.Store, log *slog.Logger, defaults Journals) *Service {
	return &Service{store: store, log: log, defaults: defaults}
}

// Journals returns the stored configuration, falling back to the defaults
// when nothing has been saved yet.
func (s *Service) Journals() Journals {
	s.mu.RLock()
	if s.cached != nil {
		j := *s.cached
		s.mu.RUnlock()
		return j
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return *s.cached
	}

	j, err := s.load()
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("load journal settings, using defaults", "error", err)
		}
		j = s.defaults
	}
	s.cached = &j
	return j
}

// Save validates and persists a new configuration.
func (s *Service) Save(j Journals) error {
	if err := j.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if _, err := s.store.Put(journalsBlob, strings.NewReader(string(data))); err != nil {
		return err
	}

	s.mu.Lock()
	s.cached = &j
	s.mu.Unlock()
	return nil
}

func (s *Service) load() (Journals, error) {
	rc, err := s.store.Open(journalsBlob)
	if err != nil {
		return Journals{}, err
	}
	defer rc.Close()

	var j Journals
	if err := json.NewDecoder(rc).Decode(&j); err != nil {
		return Journals{}, fmt.Errorf("settings: decode: %w", err)
	}
	if err := j.validate(); err != nil {
		return Journals{}, err
	}
	return j, nil
}
