package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/paperbot/pkg/models"
)

// Периоды и константы расчета
const (
	rsiPeriod       = 14
	fastMAPeriod    = 50
	slowMAPeriod    = 100
	crossMinPoints  = 201
	volWindow       = 20
	defaultVol      = 0.02
	tradingDaysYear = 252
)

// MovingAverage простая скользящая средняя последних period закрытий.
// Возвращает 0 при недостатке истории.
func MovingAverage(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// ExponentialAverage экспоненциальная скользящая средняя с множителем
// 2/(period+1). Первое значение инициализируется первой точкой ряда.
func ExponentialAverage(closes []float64, period int) float64 {
	if period <= 0 || len(closes) == 0 {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	ema := closes[0]
	for i := 1; i < len(closes); i++ {
		ema = (closes[i]-ema)*multiplier + ema
	}
	return ema
}

// RSI индекс относительной силы по средним приростам и потерям
// за последние period изменений. При недостатке истории возвращает
// нейтральные 50, при отсутствии потерь 100 (деления на ноль нет).
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)

	if rsi < 0 {
		rsi = 0
	}
	if rsi > 100 {
		rsi = 100
	}
	return rsi
}

// VWAP средневзвешенная по объему типичная цена (H+L+C)/3 за все окно.
// Возвращает 0 при нулевом суммарном объеме.
func VWAP(points []*models.PricePoint) float64 {
	totalVolume := 0.0
	weighted := 0.0
	for _, p := range points {
		typical := (p.High + p.Low + p.Close) / 3
		weighted += typical * p.Volume
		totalVolume += p.Volume
	}
	if totalVolume == 0 {
		return 0
	}
	return weighted / totalVolume
}

// MovingAverageCross детектирует золотой и мертвый кресты MA50/MA100:
// сравниваются значения на полном ряду и на ряду без последней точки.
// Требуется не менее 201 точки, иначе оба флага false.
func MovingAverageCross(closes []float64) (golden, death bool) {
	if len(closes) < crossMinPoints {
		return false, false
	}

	curFast := MovingAverage(closes, fastMAPeriod)
	curSlow := MovingAverage(closes, slowMAPeriod)
	prev := closes[:len(closes)-1]
	prevFast := MovingAverage(prev, fastMAPeriod)
	prevSlow := MovingAverage(prev, slowMAPeriod)

	golden = prevFast <= prevSlow && curFast > curSlow
	death = prevFast >= prevSlow && curFast < curSlow
	return golden, death
}

// Volatility годовая волатильность: стандартное отклонение дневных
// доходностей за последние 20 точек, умноженное на sqrt(252).
// При недостатке истории возвращает 0.02.
func Volatility(closes []float64) float64 {
	if len(closes) < volWindow {
		return defaultVol
	}

	window := closes[len(closes)-volWindow:]
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) == 0 {
		return defaultVol
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(tradingDaysYear)
}

// DetectTrend определяет тренд по взаимному положению MA50 и MA100
func DetectTrend(ma50, ma100 float64) models.Trend {
	if ma50 <= 0 || ma100 <= 0 {
		return models.TrendNeutral
	}
	if ma50 > ma100 {
		return models.TrendBullish
	}
	if ma50 < ma100 {
		return models.TrendBearish
	}
	return models.TrendNeutral
}

// Snapshot рассчитывает полный набор индикаторов по доступному окну.
// Все функции чистые: одинаковый вход дает одинаковый результат.
func Snapshot(points []*models.PricePoint) models.IndicatorSnapshot {
	closes := make([]float64, len(points))
	highs := make([]float64, len(points))
	lows := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
		highs[i] = p.High
		lows[i] = p.Low
	}

	ma50 := MovingAverage(closes, fastMAPeriod)
	ma100 := MovingAverage(closes, slowMAPeriod)
	golden, death := MovingAverageCross(closes)

	snap := models.IndicatorSnapshot{
		RSI:         RSI(closes, rsiPeriod),
		VWAP:        VWAP(points),
		MA50:        ma50,
		MA100:       ma100,
		GoldenCross: golden,
		DeathCross:  death,
		Trend:       DetectTrend(ma50, ma100),
		Volatility:  Volatility(closes),
	}

	fillExtended(&snap, highs, lows, closes)
	return snap
}

// fillExtended дополняет снимок индикаторами из talib при достаточной
// истории. Эти значения информационные и на каскад правил не влияют.
func fillExtended(snap *models.IndicatorSnapshot, highs, lows, closes []float64) {
	if len(closes) >= 35 {
		macd, signal, _ := talib.Macd(closes, 12, 26, 9)
		snap.MACD = macd[len(macd)-1]
		snap.MACDSignal = signal[len(signal)-1]
	}
	if len(closes) >= 20 {
		upper, _, lower := talib.BBands(closes, 20, 2.0, 2.0, 0)
		snap.BBUpper = upper[len(upper)-1]
		snap.BBLower = lower[len(lower)-1]
	}
	if len(closes) >= 15 {
		atr := talib.Atr(highs, lows, closes, 14)
		snap.ATR = atr[len(atr)-1]
	}
}
