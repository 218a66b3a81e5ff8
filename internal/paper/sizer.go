package paper

import (
	"math"

	"github.com/skalibog/paperbot/internal/config"
)

// minCashFloor абсолютный минимум свободных средств для новых входов
const minCashFloor = 100.0

// Sizer рассчитывает размер позиции по доступному капиталу и риску
type Sizer struct {
	cfg config.Paper
}

// NewSizer создает новый калькулятор размера позиции
func NewSizer(cfg config.Paper) *Sizer {
	return &Sizer{cfg: cfg}
}

// Quantity базовый размер: floor(min(максимальный номинал,
// свободные средства * доля утилизации) / цена). Возвращает 0 при
// некорректной цене, нехватке средств или нулевом результате.
func (s *Sizer) Quantity(availableCash, price float64) float64 {
	if price <= 0 || availableCash < minCashFloor {
		return 0
	}
	notional := math.Min(s.cfg.MaxPositionNotional, availableCash*s.cfg.CashUtilization)
	qty := math.Floor(notional / price)
	if qty <= 0 {
		return 0
	}
	return qty
}

// RiskBoundedQuantity дополнительно ограничивает размер риском на
// сделку: floor(средства * риск% / |вход - стоп|). Действует более
// строгая из двух границ.
func (s *Sizer) RiskBoundedQuantity(availableCash, price, stopLoss float64) float64 {
	qty := s.Quantity(availableCash, price)
	if qty <= 0 {
		return 0
	}
	if s.cfg.RiskPerTradePercent <= 0 || stopLoss <= 0 {
		return qty
	}
	distance := math.Abs(price - stopLoss)
	if distance <= 0 {
		return qty
	}
	riskQty := math.Floor(availableCash * s.cfg.RiskPerTradePercent / 100 / distance)
	if riskQty < qty {
		qty = riskQty
	}
	if qty <= 0 {
		return 0
	}
	return qty
}
