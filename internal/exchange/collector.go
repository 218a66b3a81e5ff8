package exchange

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/paperbot/pkg/logger"
	"github.com/skalibog/paperbot/pkg/models"
	"go.uber.org/zap"
)

const fetchAttempts = 3

// Collector забирает рыночные данные с повторами. Ошибки источника за
// границей коллектора не распространяются: после исчерпания попыток
// символ считается "без данных" на этот тик.
type Collector struct {
	client MarketData
}

// NewCollector создает коллектор поверх клиента биржи
func NewCollector(client MarketData) *Collector {
	return &Collector{client: client}
}

// SymbolData данные одного символа за тик. Nil-поля означают
// отсутствие данных, это не ошибка.
type SymbolData struct {
	Symbol string
	Points []*models.PricePoint
	Quote  *models.Quote
}

// Fetch получает историю и котировку символа с экспоненциальным
// бэкоффом между попытками
func (c *Collector) Fetch(ctx context.Context, symbol, interval string, limit int) *SymbolData {
	data := &SymbolData{Symbol: symbol}

	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		points, err := c.client.GetKlines(ctx, symbol, interval, limit)
		if err == nil {
			data.Points = points
			break
		}
		logger.Warn("Ошибка получения свечей, повтор",
			zap.String("symbol", symbol), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return data
		}
	}

	b.Reset()
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		quote, err := c.client.GetQuote(ctx, symbol)
		if err == nil {
			data.Quote = quote
			break
		}
		logger.Warn("Ошибка получения котировки, повтор",
			zap.String("symbol", symbol), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return data
		}
	}

	return data
}
