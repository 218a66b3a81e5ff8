package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
binance:
  api_key: "key"
  api_secret: "secret"
  testnet: true
trading:
  symbols: ["BTCUSDT", "ETHUSDT"]
  initial_cash: 25000
paper:
  min_confidence: 50
  max_position_notional: 5000
storage:
  type: "none"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 25000.0, cfg.Trading.InitialCash)
	assert.Equal(t, 50.0, cfg.Paper.MinConfidence)
	assert.Equal(t, 5000.0, cfg.Paper.MaxPositionNotional)

	// Пропущенные поля получают значения по умолчанию
	assert.Equal(t, "1m", cfg.Trading.Interval)
	assert.Equal(t, 0.20, cfg.Paper.MarginFractionShorts)
	assert.Equal(t, 0.90, cfg.Paper.CashUtilization)
	assert.Equal(t, 300, cfg.Paper.CooldownSeconds)
	assert.Equal(t, "UTC", cfg.Paper.Timezone)
	assert.Equal(t, 30, cfg.Engine.IntervalSeconds)
}
