package signal

import (
	"math"
	"time"

	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/pkg/models"
)

// Пороговые значения каскада правил
const (
	// Агрессивный режим включается при низком пороге уверенности
	aggressiveCutoff = 55.0

	oversoldConservative   = 35.0
	overboughtConservative = 65.0
	oversoldAggressive     = 45.0
	overboughtAggressive   = 55.0

	// Границы уверенности для не-HOLD сигналов
	confidenceFloor = 40.0
	confidenceCap   = 95.0

	tradingDaysYear = 252
)

// Classifier превращает снимок индикаторов в торговый сигнал.
// Правила проверяются строго по порядку, срабатывает первое подошедшее.
type Classifier struct {
	cfg config.Paper
}

// NewClassifier создает новый классификатор сигналов
func NewClassifier(cfg config.Paper) *Classifier {
	return &Classifier{cfg: cfg}
}

// Aggressive возвращает true, если настроенный минимальный порог
// уверенности включает агрессивный режим с расширенными зонами входа
func (c *Classifier) Aggressive() bool {
	return c.cfg.MinConfidence <= aggressiveCutoff
}

// Evaluate вычисляет сигнал для символа по текущей цене и индикаторам
func (c *Classifier) Evaluate(symbol string, price float64, snap models.IndicatorSnapshot, now time.Time) models.Signal {
	kind, confidence := c.classify(price, snap)

	if kind != models.SignalHold {
		confidence = math.Max(confidenceFloor, math.Min(confidenceCap, confidence))
	}

	return models.Signal{
		Symbol:     symbol,
		Timestamp:  now,
		Kind:       kind,
		Confidence: confidence,
		Targets:    c.priceTargets(kind, price, snap),
	}
}

// classify упорядоченный каскад правил. Уверенность фиксирована
// для каждого правила, это не непрерывная функция.
func (c *Classifier) classify(price float64, snap models.IndicatorSnapshot) (models.SignalKind, float64) {
	oversold := oversoldConservative
	overbought := overboughtConservative
	aggressive := c.Aggressive()
	if aggressive {
		oversold = oversoldAggressive
		overbought = overboughtAggressive
	}

	rsi := snap.RSI

	// Сторона покупки, от самого строгого правила к самому слабому
	switch {
	case rsi <= oversold && snap.GoldenCross && snap.Trend == models.TrendBullish:
		return models.SignalStrongBuy, 95
	case rsi <= oversold && snap.GoldenCross:
		return models.SignalStrongBuy, 90
	case rsi <= oversold && snap.Trend == models.TrendBullish && snap.VWAP > 0 && price < snap.VWAP:
		return models.SignalBuy, 80
	case rsi <= oversold && snap.VWAP > 0 && price < snap.VWAP:
		return models.SignalBuy, 70
	case rsi <= oversold:
		return models.SignalBuy, 60
	}

	// Зеркальная сторона продажи
	switch {
	case rsi >= overbought && snap.DeathCross && snap.Trend == models.TrendBearish:
		return models.SignalStrongSell, 95
	case rsi >= overbought && snap.DeathCross:
		return models.SignalStrongSell, 90
	case rsi >= overbought && snap.Trend == models.TrendBearish && snap.VWAP > 0 && price > snap.VWAP:
		return models.SignalSell, 80
	case rsi >= overbought && snap.VWAP > 0 && price > snap.VWAP:
		return models.SignalSell, 70
	case rsi >= overbought:
		return models.SignalSell, 60
	}

	// Моментум-правила только в агрессивном режиме: слабый сигнал
	// по одному подтверждению (порядок MA) в широкой зоне RSI.
	// Первое совпадение побеждает, это документированный разрешитель
	// конфликта между сторонами.
	if aggressive {
		if snap.MA50 > snap.MA100 && snap.MA100 > 0 && rsi >= 40 && rsi <= 70 {
			return models.SignalBuy, 52
		}
		if snap.MA100 > snap.MA50 && snap.MA50 > 0 && rsi >= 30 && rsi <= 60 {
			return models.SignalSell, 52
		}
	}

	return models.SignalHold, 0
}

// volMultiplier множитель волатильности растет с силой сигнала
func volMultiplier(kind models.SignalKind) float64 {
	switch kind {
	case models.SignalStrongBuy, models.SignalStrongSell:
		return 2.0
	case models.SignalBuy, models.SignalSell:
		return 1.5
	default:
		return 1.0
	}
}

// priceTargets рассчитывает ценовые цели: вход со скидкой или премией
// к VWAP, стоп, ограниченный уровнем MA50, и тейк-профит с множителем
// волатильности по силе сигнала.
func (c *Classifier) priceTargets(kind models.SignalKind, price float64, snap models.IndicatorSnapshot) models.PriceTargets {
	if price <= 0 {
		return models.PriceTargets{}
	}

	dailyVol := snap.Volatility / math.Sqrt(tradingDaysYear)
	mult := volMultiplier(kind)
	band := price * dailyVol * mult

	vwap := snap.VWAP
	if vwap <= 0 {
		vwap = price
	}

	switch {
	case kind.IsBuy():
		buy := math.Min(price, vwap) * (1 - 0.5*dailyVol)
		take := price * (1 + dailyVol*mult)
		stop := price * (1 - dailyVol*mult)
		// Стоп не опускается заметно ниже MA50, если она под ценой
		if snap.MA50 > 0 && snap.MA50 < price && stop < snap.MA50*0.98 {
			stop = snap.MA50 * 0.98
		}
		return models.PriceTargets{Buy: buy, Sell: take, StopLoss: stop, TakeProfit: take}

	case kind.IsSell():
		sell := math.Max(price, vwap) * (1 + 0.5*dailyVol)
		take := price * (1 - dailyVol*mult)
		stop := price * (1 + dailyVol*mult)
		// Для шорта стоп не поднимается заметно выше MA50 над ценой
		if snap.MA50 > price && stop > snap.MA50*1.02 {
			stop = snap.MA50 * 1.02
		}
		return models.PriceTargets{Buy: take, Sell: sell, StopLoss: stop, TakeProfit: take}

	default:
		return models.PriceTargets{
			Buy:        price - band,
			Sell:       price + band,
			StopLoss:   price - band,
			TakeProfit: price + band,
		}
	}
}
