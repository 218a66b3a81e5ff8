package paper

import (
	"testing"

	"github.com/skalibog/paperbot/internal/config"
	"github.com/stretchr/testify/assert"
)

func sizerConfig() config.Paper {
	return config.Paper{
		MaxPositionNotional: 10000,
		CashUtilization:     0.90,
	}
}

func TestQuantityBasic(t *testing.T) {
	s := NewSizer(sizerConfig())

	// floor(min(10000, 50000*0.9)/100) = 100
	assert.Equal(t, 100.0, s.Quantity(50000, 100))
}

func TestQuantityLimitedByCash(t *testing.T) {
	s := NewSizer(sizerConfig())

	// floor(min(10000, 2000*0.9)/100) = 18
	assert.Equal(t, 18.0, s.Quantity(2000, 100))
}

func TestQuantityRejects(t *testing.T) {
	s := NewSizer(sizerConfig())

	assert.Equal(t, 0.0, s.Quantity(50000, 0))
	assert.Equal(t, 0.0, s.Quantity(50000, -5))
	// Ниже абсолютного минимума свободных средств
	assert.Equal(t, 0.0, s.Quantity(50, 100))
	// Цена выше доступного номинала
	assert.Equal(t, 0.0, s.Quantity(50000, 20000))
}

func TestQuantityCostNeverExceedsCash(t *testing.T) {
	s := NewSizer(sizerConfig())

	for _, cash := range []float64{150, 1000, 9999, 50000, 123456} {
		for _, price := range []float64{0.5, 3, 101, 999} {
			qty := s.Quantity(cash, price)
			assert.LessOrEqual(t, qty*price, cash,
				"cash=%v price=%v qty=%v", cash, price, qty)
		}
	}
}

func TestRiskBoundedQuantity(t *testing.T) {
	cfg := sizerConfig()
	cfg.RiskPerTradePercent = 1.0
	s := NewSizer(cfg)

	// Базовая граница: 100. Риск: floor(50000*0.01/|100-98|) = 250.
	// Действует более строгая граница.
	assert.Equal(t, 100.0, s.RiskBoundedQuantity(50000, 100, 98))

	// Узкий стоп не расширяет позицию, широкий сужает:
	// floor(50000*0.01/|100-90|) = 50 < 100
	assert.Equal(t, 50.0, s.RiskBoundedQuantity(50000, 100, 90))
}

func TestRiskBoundedQuantityWithoutStop(t *testing.T) {
	cfg := sizerConfig()
	cfg.RiskPerTradePercent = 1.0
	s := NewSizer(cfg)

	// Нулевая дистанция стопа: остается базовая граница
	assert.Equal(t, 100.0, s.RiskBoundedQuantity(50000, 100, 100))
	assert.Equal(t, 100.0, s.RiskBoundedQuantity(50000, 100, 0))
}
