package indicators

import (
	"testing"
	"time"

	"github.com/skalibog/paperbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(closes []float64, volume float64) []*models.PricePoint {
	pts := make([]*models.PricePoint, len(closes))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		pts[i] = &models.PricePoint{
			Symbol: "TEST",
			Date:   base.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: volume,
		}
	}
	return pts
}

func rising(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func TestMovingAverage(t *testing.T) {
	closes := []float64{10, 20, 30, 40}

	assert.Equal(t, 30.0, MovingAverage(closes, 3))
	assert.Equal(t, 25.0, MovingAverage(closes, 4))
	// Недостаток истории дает 0, а не ошибку
	assert.Equal(t, 0.0, MovingAverage(closes, 5))
	assert.Equal(t, 0.0, MovingAverage(nil, 3))
}

func TestExponentialAverageSeedsOnFirstPoint(t *testing.T) {
	assert.Equal(t, 42.0, ExponentialAverage([]float64{42}, 10))

	// Множитель 2/(period+1): для period=3 это 0.5
	got := ExponentialAverage([]float64{10, 20}, 3)
	assert.InDelta(t, 15.0, got, 1e-9)
}

func TestRSINeutralOnShortSeries(t *testing.T) {
	assert.Equal(t, 50.0, RSI(nil, 14))
	assert.Equal(t, 50.0, RSI(rising(14), 14))
}

func TestRSIAllGains(t *testing.T) {
	// Потерь нет: RSI 100 без деления на ноль
	assert.Equal(t, 100.0, RSI(rising(30), 14))
}

func TestRSIBounds(t *testing.T) {
	closes := []float64{100, 103, 99, 104, 98, 105, 97, 106, 96, 107, 95, 108, 94, 109, 93, 110}
	rsi := RSI(closes, 14)
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
}

func TestVWAPWithinRange(t *testing.T) {
	pts := points([]float64{100, 102, 98, 101}, 500)
	vwap := VWAP(pts)

	minLow, maxHigh := pts[0].Low, pts[0].High
	for _, p := range pts {
		if p.Low < minLow {
			minLow = p.Low
		}
		if p.High > maxHigh {
			maxHigh = p.High
		}
	}
	assert.GreaterOrEqual(t, vwap, minLow)
	assert.LessOrEqual(t, vwap, maxHigh)
}

func TestVWAPZeroVolume(t *testing.T) {
	pts := points([]float64{100, 102, 98}, 0)
	assert.Equal(t, 0.0, VWAP(pts))
}

func TestCrossRequiresHistory(t *testing.T) {
	golden, death := MovingAverageCross(rising(200))
	assert.False(t, golden)
	assert.False(t, death)
}

func TestGoldenCrossDetected(t *testing.T) {
	// Долгое падение, затем резкий рост: MA50 пересекает MA100 снизу
	closes := make([]float64, 0, 260)
	price := 200.0
	for i := 0; i < 200; i++ {
		price -= 0.5
		closes = append(closes, price)
	}
	for i := 0; i < 60; i++ {
		price += 3
		closes = append(closes, price)
	}

	foundGolden := false
	for i := 201; i <= len(closes); i++ {
		golden, _ := MovingAverageCross(closes[:i])
		if golden {
			foundGolden = true
			break
		}
	}
	assert.True(t, foundGolden, "золотой крест не обнаружен на развороте")
}

func TestTrendBullishOnRisingSeries(t *testing.T) {
	closes := rising(120)
	ma50 := MovingAverage(closes, 50)
	ma100 := MovingAverage(closes, 100)

	require.Greater(t, ma50, ma100)
	assert.Equal(t, models.TrendBullish, DetectTrend(ma50, ma100))
}

func TestTrendNeutralWithoutHistory(t *testing.T) {
	assert.Equal(t, models.TrendNeutral, DetectTrend(100, 0))
	assert.Equal(t, models.TrendNeutral, DetectTrend(0, 0))
}

func TestVolatilityDefault(t *testing.T) {
	assert.Equal(t, 0.02, Volatility(rising(19)))
}

func TestVolatilityNonNegative(t *testing.T) {
	closes := []float64{100, 105, 95, 110, 90, 108, 92, 107, 93, 106, 94, 105, 95, 104, 96, 103, 97, 102, 98, 101, 99}
	assert.Greater(t, Volatility(closes), 0.0)
}

func TestSnapshotDeterministic(t *testing.T) {
	pts := points(rising(120), 1000)

	a := Snapshot(pts)
	b := Snapshot(pts)
	assert.Equal(t, a, b)
}

func TestSnapshotShortSeriesDefaults(t *testing.T) {
	snap := Snapshot(points([]float64{100, 101}, 10))

	assert.Equal(t, 50.0, snap.RSI)
	assert.Equal(t, 0.0, snap.MA50)
	assert.Equal(t, 0.0, snap.MA100)
	assert.False(t, snap.GoldenCross)
	assert.False(t, snap.DeathCross)
	assert.Equal(t, models.TrendNeutral, snap.Trend)
	assert.Equal(t, 0.02, snap.Volatility)
}
