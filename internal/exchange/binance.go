package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/pkg/models"
)

// MarketData источник рыночных данных для движка
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.PricePoint, error)
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// BinanceClient клиент для получения рыночных данных с Binance
type BinanceClient struct {
	spot *binance.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.Binance) (*BinanceClient, error) {
	spotClient := binance.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.Testnet {
		spotClient.SetApiEndpoint("https://testnet.binance.vision")
	}

	return &BinanceClient{spot: spotClient}, nil
}

// GetKlines получает исторические свечи, от старых к новым
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.PricePoint, error) {
	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	points := make([]*models.PricePoint, 0, len(klines))
	for _, k := range klines {
		point := &models.PricePoint{
			Symbol: symbol,
			Date:   time.Unix(k.OpenTime/1000, 0),
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
		}
		if point.Close <= 0 {
			continue
		}
		points = append(points, point)
	}

	return points, nil
}

// GetQuote получает последнюю котировку символа из суточной статистики
func (c *BinanceClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	stats, err := c.spot.NewListPriceChangeStatsService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения котировки: %w", err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("нет данных котировки для %s", symbol)
	}

	s := stats[0]
	quote := &models.Quote{
		Symbol:        symbol,
		Price:         parseFloat(s.LastPrice),
		Change:        parseFloat(s.PriceChange),
		ChangePercent: parseFloat(s.PriceChangePercent),
		Volume:        parseFloat(s.Volume),
	}
	return quote, nil
}

// parseFloat разбирает числовое поле API через decimal,
// некорректные значения превращаются в 0
func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
