package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/paperbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSnapshotRepoRoundTrip(t *testing.T) {
	repo := NewFileSnapshotRepo(filepath.Join(t.TempDir(), "account.json"))

	pnl := 400.0
	state := &AccountState{
		SavedAt:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		InitialCash:   50000,
		AvailableCash: 50400,
		TotalPnL:      400,
		DayPnL:        400,
		Positions: map[string]models.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Side: models.SideLong, Quantity: 100, AvgPrice: 100, Reserved: 10000},
		},
		Trades: []models.Trade{
			{ID: uuid.New(), Symbol: "BTCUSDT", Side: models.TradeBuy, Reserved: 10000},
			{ID: uuid.New(), Symbol: "BTCUSDT", Side: models.TradeSell, Reserved: 10000, RealizedPnL: &pnl},
		},
	}
	require.NoError(t, repo.Save(state))

	loaded, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, state.AvailableCash, loaded.AvailableCash)
	assert.Equal(t, state.Positions["BTCUSDT"].Reserved, loaded.Positions["BTCUSDT"].Reserved)
	require.Len(t, loaded.Trades, 2)
	require.NotNil(t, loaded.Trades[1].RealizedPnL)
	assert.Equal(t, pnl, *loaded.Trades[1].RealizedPnL)
}

func TestFileSnapshotRepoMissingFile(t *testing.T) {
	repo := NewFileSnapshotRepo(filepath.Join(t.TempDir(), "absent.json"))

	_, err := repo.Load()
	assert.Error(t, err)
}
