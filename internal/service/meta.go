package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
)

// MetaService reads and writes the small meta document kept next to the
// database. Writes are skipped when nothing changed and after a hard reset.
type MetaService struct {
	path    string
	emitter domain.Emitter
	logger  zerolog.Logger

	mu         sync.Mutex
	suppressed bool
}

func NewMetaService(cfg *config.Config, emitter domain.Emitter, logger zerolog.Logger) *MetaService {
	return &MetaService{
		path:    cfg.MetaPath(constants.MetaFileName),
		emitter: emitter,
		logger:  logger,
	}
}

func (s *MetaService) Path() string { return s.path }

// Get returns the stored meta, or the defaults when the file is missing or
// empty.
func (s *MetaService) Get() domain.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read meta, using defaults")
		return domain.DefaultMeta()
	}
	return m
}

// Save writes m when it differs from what is stored and emits it.
func (s *MetaService) Save(m domain.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(m)
}

// Update applies fn to the stored meta and saves the result.
func (s *MetaService) Update(fn func(m *domain.Meta)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read meta, using defaults")
		m = domain.DefaultMeta()
	}
	fn(&m)
	return s.save(m)
}

// Suppress stops all writes until Resume is called.
func (s *MetaService) Suppress() {
	s.mu.Lock()
	s.suppressed = true
	s.mu.Unlock()
}

func (s *MetaService) Resume() {
	s.mu.Lock()
	s.suppressed = false
	s.mu.Unlock()
}

func (s *MetaService) save(m domain.Meta) error {
	if s.suppressed {
		return nil
	}
	if m.FolderTimestamps == nil {
		m.FolderTimestamps = map[string]int64{}
	}
	if m.DetectedUserCodes == nil {
		m.DetectedUserCodes = map[string]string{}
	}
	_, stored, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("stored meta unreadable, overwriting")
		stored = nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if bytes.Equal(encoded, stored) {
		return nil
	}
	if err := os.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	s.emitter.Emit(domain.EventMeta, m)
	return nil
}

func (s *MetaService) read() (domain.Meta, []byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		m := domain.DefaultMeta()
		encoded, _ := json.Marshal(m)
		return m, encoded, nil
	}
	if err != nil {
		return domain.Meta{}, nil, fmt.Errorf("failed to read meta: %w", err)
	}
	m := domain.DefaultMeta()
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Meta{}, nil, fmt.Errorf("failed to decode meta: %w", err)
	}
	return m, data, nil
}
