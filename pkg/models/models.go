package models

import (
	"time"

	"github.com/google/uuid"
)

// PricePoint представляет одну свечу OHLCV
type PricePoint struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote представляет последнюю котировку символа
type Quote struct {
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
	Volume        float64
}

// Trend направление тренда
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// IndicatorSnapshot результат расчета индикаторов за один тик.
// Дополнительные поля (MACD, Bollinger, ATR) заполняются только
// при достаточной истории, иначе остаются нулевыми.
type IndicatorSnapshot struct {
	RSI         float64
	VWAP        float64
	MA50        float64
	MA100       float64
	GoldenCross bool
	DeathCross  bool
	Trend       Trend
	Volatility  float64

	MACD       float64
	MACDSignal float64
	BBUpper    float64
	BBLower    float64
	ATR        float64
}

// SignalKind вид торгового сигнала
type SignalKind string

const (
	SignalStrongBuy  SignalKind = "STRONG_BUY"
	SignalBuy        SignalKind = "BUY"
	SignalHold       SignalKind = "HOLD"
	SignalSell       SignalKind = "SELL"
	SignalStrongSell SignalKind = "STRONG_SELL"
)

// IsBuy возвращает true для сигналов на покупку
func (k SignalKind) IsBuy() bool {
	return k == SignalBuy || k == SignalStrongBuy
}

// IsSell возвращает true для сигналов на продажу
func (k SignalKind) IsSell() bool {
	return k == SignalSell || k == SignalStrongSell
}

// PriceTargets ценовые цели сигнала
type PriceTargets struct {
	Buy        float64
	Sell       float64
	StopLoss   float64
	TakeProfit float64
}

// Signal торговый сигнал для одного символа за один тик
type Signal struct {
	Symbol     string
	Timestamp  time.Time
	Kind       SignalKind
	Confidence float64
	Targets    PriceTargets
}

// PositionSide направление позиции. Явный тег вместо знака количества:
// количество всегда >= 0, знак восстанавливается через SignedQuantity.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Position открытая бумажная позиция. Не более одной на символ.
type Position struct {
	Symbol        string
	Side          PositionSide
	Quantity      float64
	AvgPrice      float64
	EntryTime     time.Time
	TargetPrice   float64
	StopLossPrice float64
	// Reserved зарезервированный при входе капитал: полная стоимость
	// для лонга, маржинальная доля для шорта. Возвращается при закрытии
	// ровно в этом размере.
	Reserved float64
}

// SignedQuantity возвращает количество со знаком: лонг положительный,
// шорт отрицательный
func (p *Position) SignedQuantity() float64 {
	if p.Side == SideShort {
		return -p.Quantity
	}
	return p.Quantity
}

// TradeSide действие ордера (не направление позиции)
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// Trade запись журнала сделок. После создания не изменяется.
// RealizedPnL присутствует только у закрывающих сделок.
type Trade struct {
	ID           uuid.UUID
	Symbol       string
	Side         TradeSide
	PositionSide PositionSide
	Price        float64
	Quantity     float64
	Reserved     float64
	Timestamp    time.Time
	SignalKind   SignalKind
	Confidence   float64
	Reason       string

	RealizedPnL  *float64
	ExitPrice    float64
	HoldDuration time.Duration
}

// IsClosing возвращает true для закрывающей сделки
func (t *Trade) IsClosing() bool {
	return t.RealizedPnL != nil
}

// AccountSnapshot срез состояния счета после мутации тика.
// Только для чтения на стороне потребителя.
type AccountSnapshot struct {
	AvailableCash float64
	TotalPnL      float64
	DayPnL        float64
	OpenPositions map[string]Position
	RecentTrades  []Trade
}

// ReconcileResult результат сверки журнала сделок с балансом
type ReconcileResult struct {
	CalculatedBalance float64
	CalculatedPnL     float64
	Drift             float64
}

// TickResult результат обработки одного символа за тик
type TickResult struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Snapshot  IndicatorSnapshot
	Signal    Signal
}
