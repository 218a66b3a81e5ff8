package paper

import (
	"testing"
	"time"

	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/internal/ledger"
	"github.com/skalibog/paperbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func paperConfig() config.Paper {
	return config.Paper{
		MinConfidence:          60,
		MaxPositionNotional:    10000,
		MaxDailyLoss:           500,
		MaxConcurrentPositions: 3,
		StopLossPercent:        1.5,
		TakeProfitPercent:      2.2,
		MaxHoldMinutes:         240,
		CooldownSeconds:        300,
		MarginFractionShorts:   0.20,
		CashUtilization:        0.90,
		Timezone:               "UTC",
	}
}

func newTestEngine(t *testing.T, cfg config.Paper, cash float64) *Engine {
	t.Helper()
	e := NewEngine(cfg, ledger.New(cash, cfg.Timezone, t0))
	t.Cleanup(e.Stop)
	return e
}

func buySignal(symbol string, confidence float64) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Timestamp:  t0,
		Kind:       models.SignalBuy,
		Confidence: confidence,
	}
}

func sellSignal(symbol string, confidence float64) models.Signal {
	return models.Signal{
		Symbol:     symbol,
		Timestamp:  t0,
		Kind:       models.SignalSell,
		Confidence: confidence,
	}
}

func TestLongRoundTrip(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	// Вход: floor(min(10000, 45000)/100) = 100 единиц, резерв 10000
	trade := e.Apply(buySignal("AAPL", 90), 100, t0)
	require.NotNil(t, trade)
	assert.Equal(t, models.TradeBuy, trade.Side)
	assert.Equal(t, 100.0, trade.Quantity)
	assert.Equal(t, 10000.0, trade.Reserved)

	account := e.Snapshot()
	assert.InDelta(t, 40000.0, account.AvailableCash, 1e-9)
	require.Contains(t, account.OpenPositions, "AAPL")

	// Рост на 4% при тейк-профите 2.2%: обход закрывает позицию
	closed := e.SweepExits(map[string]float64{"AAPL": 104}, t0.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonTakeProfit, closed[0].Reason)
	require.NotNil(t, closed[0].RealizedPnL)
	assert.InDelta(t, 400.0, *closed[0].RealizedPnL, 1e-9)

	account = e.Snapshot()
	assert.InDelta(t, 50400.0, account.AvailableCash, 1e-9)
	assert.InDelta(t, 400.0, account.TotalPnL, 1e-9)
	assert.Empty(t, account.OpenPositions)
}

func TestShortRoundTrip(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	// Шорт резервирует маржинальную долю: 100*100*0.2 = 2000
	trade := e.Apply(sellSignal("TSLA", 90), 100, t0)
	require.NotNil(t, trade)
	assert.Equal(t, models.TradeSell, trade.Side)
	assert.Equal(t, models.SideShort, trade.PositionSide)
	assert.Equal(t, 100.0, trade.Quantity)
	assert.InDelta(t, 2000.0, trade.Reserved, 1e-9)

	account := e.Snapshot()
	assert.InDelta(t, 48000.0, account.AvailableCash, 1e-9)

	// Падение на 3% в пользу шорта: PnL (100-97)*100 = 300
	closed := e.SweepExits(map[string]float64{"TSLA": 97}, t0.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.InDelta(t, 300.0, *closed[0].RealizedPnL, 1e-9)

	account = e.Snapshot()
	assert.InDelta(t, 50300.0, account.AvailableCash, 1e-9)
}

func TestOpenCloseFlatPriceRestoresCash(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))

	trade, err := e.ClosePosition("AAPL", 100, t0.Add(time.Minute), ReasonShutdown)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, *trade.RealizedPnL, 1e-9)

	account := e.Snapshot()
	assert.InDelta(t, 50000.0, account.AvailableCash, 1e-9)
}

func TestSecondEntryRejected(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))
	before := e.Snapshot()

	// Повторный сигнал той же стороны не создает ни сделки, ни мутации
	assert.Nil(t, e.Apply(buySignal("AAPL", 95), 101, t0.Add(time.Second)))

	after := e.Snapshot()
	assert.Equal(t, before.AvailableCash, after.AvailableCash)
	assert.Len(t, e.Trades(), 1)
}

func TestOpenPositionContractViolation(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	_, err := e.OpenPosition(buySignal("AAPL", 90), models.SideLong, 100, t0)
	require.NoError(t, err)

	// Прямое открытие второй позиции по тому же символу — нарушение
	// контракта, а не тихий пропуск
	_, err = e.OpenPosition(buySignal("AAPL", 90), models.SideLong, 101, t0.Add(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestCloseMissingPositionFailsLoudly(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	_, err := e.ClosePosition("GHOST", 100, t0, ReasonShutdown)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestOpposingSignalClosesImmediately(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))

	// Встречный сигнал закрывает независимо от цены и уверенности
	trade := e.Apply(sellSignal("AAPL", 45), 100.5, t0.Add(time.Minute))
	require.NotNil(t, trade)
	assert.True(t, trade.IsClosing())
	assert.Equal(t, ReasonOpposingSignal, trade.Reason)
	assert.Empty(t, e.Snapshot().OpenPositions)
}

func TestCooldownLimitsTrades(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))
	e.SweepExits(map[string]float64{"AAPL": 104}, t0.Add(time.Minute))

	// Второй сигнал внутри окна кулдауна не открывает позицию
	assert.Nil(t, e.Apply(buySignal("AAPL", 90), 100, t0.Add(2*time.Minute)))

	// После окна вход снова разрешен
	assert.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0.Add(10*time.Minute)))
}

func TestLowConfidenceRejected(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	assert.Nil(t, e.Apply(buySignal("AAPL", 59), 100, t0))
	assert.Empty(t, e.Trades())
}

func TestMaxConcurrentPositions(t *testing.T) {
	cfg := paperConfig()
	cfg.MaxConcurrentPositions = 2
	e := newTestEngine(t, cfg, 100000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))
	require.NotNil(t, e.Apply(buySignal("TSLA", 90), 50, t0))
	assert.Nil(t, e.Apply(buySignal("MSFT", 90), 200, t0))
	assert.Len(t, e.Snapshot().OpenPositions, 2)
}

func TestDailyLossLimitBlocksEntries(t *testing.T) {
	cfg := paperConfig()
	cfg.CooldownSeconds = 0
	e := newTestEngine(t, cfg, 50000)

	// Убыток 100*(100-90) = 1000 превышает дневной лимит 500
	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))
	closed := e.SweepExits(map[string]float64{"AAPL": 90}, t0.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonStopLoss, closed[0].Reason)

	// Новые входы заблокированы независимо от силы сигнала
	assert.Nil(t, e.Apply(buySignal("TSLA", 95), 50, t0.Add(2*time.Minute)))

	// Смена торгового дня снимает блокировку
	nextDay := t0.Add(24 * time.Hour)
	assert.NotNil(t, e.Apply(buySignal("TSLA", 95), 50, nextDay))
}

func TestMaxHoldExitInSweep(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))

	// Цена не двигалась, но срок удержания истек
	closed := e.SweepExits(map[string]float64{"AAPL": 100}, t0.Add(241*time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonMaxHold, closed[0].Reason)
}

func TestStopMirroredForShort(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	require.NotNil(t, e.Apply(sellSignal("TSLA", 90), 100, t0))

	// Рост цены против шорта на 2% при стопе 1.5%
	closed := e.SweepExits(map[string]float64{"TSLA": 102}, t0.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonStopLoss, closed[0].Reason)
	assert.InDelta(t, -200.0, *closed[0].RealizedPnL, 1e-9)
}

func TestReconcileCleanAfterScenario(t *testing.T) {
	cfg := paperConfig()
	cfg.CooldownSeconds = 0
	e := newTestEngine(t, cfg, 50000)

	require.NotNil(t, e.Apply(buySignal("AAPL", 90), 100, t0))
	e.SweepExits(map[string]float64{"AAPL": 104}, t0.Add(time.Minute))
	require.NotNil(t, e.Apply(sellSignal("TSLA", 90), 50, t0.Add(2*time.Minute)))
	e.SweepExits(map[string]float64{"TSLA": 48}, t0.Add(3*time.Minute))

	result := e.Reconcile()
	assert.InDelta(t, 0.0, result.Drift, ledger.DriftEpsilon)
	assert.InDelta(t, e.Snapshot().AvailableCash, result.CalculatedBalance, ledger.DriftEpsilon)
}

func TestRestoreReopensPositions(t *testing.T) {
	e := newTestEngine(t, paperConfig(), 50000)

	positions := map[string]models.Position{
		"AAPL": {
			Symbol:    "AAPL",
			Side:      models.SideLong,
			Quantity:  100,
			AvgPrice:  100,
			EntryTime: t0,
			Reserved:  10000,
		},
	}
	e.Restore(40000, 0, 0, positions, nil, t0.Add(time.Minute))

	account := e.Snapshot()
	assert.InDelta(t, 40000.0, account.AvailableCash, 1e-9)
	require.Contains(t, account.OpenPositions, "AAPL")

	// Восстановленная позиция закрывается обычным путем
	closed := e.SweepExits(map[string]float64{"AAPL": 104}, t0.Add(2*time.Minute))
	require.Len(t, closed, 1)
	assert.InDelta(t, 50400.0, e.Snapshot().AvailableCash, 1e-9)
}
