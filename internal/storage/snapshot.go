package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/skalibog/paperbot/pkg/models"
)

// AccountState сериализуемое состояние бумажного счета.
// Снимок позволяет перезапускать движок без потери позиций и журнала.
type AccountState struct {
	SavedAt       time.Time                  `json:"saved_at"`
	InitialCash   float64                    `json:"initial_cash"`
	AvailableCash float64                    `json:"available_cash"`
	TotalPnL      float64                    `json:"total_pnl"`
	DayPnL        float64                    `json:"day_pnl"`
	Positions     map[string]models.Position `json:"positions"`
	Trades        []models.Trade             `json:"trades"`
}

// SnapshotRepo интерфейс репозитория снимков счета, внедряется в
// движок вместо глобального состояния
type SnapshotRepo interface {
	Load() (*AccountState, error)
	Save(state *AccountState) error
}

// FileSnapshotRepo хранит снимок счета в JSON-файле с атомарной записью
type FileSnapshotRepo struct {
	path string
}

// NewFileSnapshotRepo создает файловый репозиторий снимков
func NewFileSnapshotRepo(path string) *FileSnapshotRepo {
	return &FileSnapshotRepo{path: path}
}

// Load читает снимок счета. Отсутствие файла возвращается как ошибка,
// вызывающая сторона начинает с чистого счета.
func (r *FileSnapshotRepo) Load() (*AccountState, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	var state AccountState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save записывает снимок счета атомарно
func (r *FileSnapshotRepo) Save(state *AccountState) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, b, 0o600)
}

// writeFileAtomic пишет файл через временный файл с fsync и rename
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// fsync каталога по возможности
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
