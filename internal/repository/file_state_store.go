package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"futuresbot/internal/models"
)

// FileStateStore хранит состояние риска в JSON-файле.
// Запись атомарная: временный файл и rename.
type FileStateStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStateStore создает хранилище по пути к файлу
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Path возвращает путь к файлу состояния
func (s *FileStateStore) Path() string { return s.path }

// SaveRiskState записывает состояние в файл
func (s *FileStateStore) SaveRiskState(ctx context.Context, state *models.RiskState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode risk state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// LoadRiskState читает состояние; (nil, nil), если файла нет
func (s *FileStateStore) LoadRiskState(ctx context.Context) (*models.RiskState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	state := &models.RiskState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return state, nil
}
