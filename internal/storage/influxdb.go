// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/pkg/models"
)

// Storage интерфейс хранилища временных рядов. Запись выполняется по
// возможности: недоступность хранилища не останавливает торговый цикл.
type Storage interface {
	SaveCandles(ctx context.Context, points []*models.PricePoint, interval string) error
	SaveSignal(ctx context.Context, sig *models.Signal, price float64) error
	SaveTrade(ctx context.Context, trade *models.Trade) error
	SaveEquity(ctx context.Context, snap models.AccountSnapshot, ts time.Time) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error)
	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.Storage) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandles сохраняет свечи символа
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, points []*models.PricePoint, interval string) error {
	for _, p := range points {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   p.Symbol,
				"interval": interval,
			},
			map[string]interface{}{
				"open":   p.Open,
				"high":   p.High,
				"low":    p.Low,
				"close":  p.Close,
				"volume": p.Volume,
			},
			p.Date,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveSignal сохраняет сигнал тика
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, sig *models.Signal, price float64) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": sig.Symbol,
			"kind":   string(sig.Kind),
		},
		map[string]interface{}{
			"confidence":  sig.Confidence,
			"price":       price,
			"buy_target":  sig.Targets.Buy,
			"sell_target": sig.Targets.Sell,
			"stop_loss":   sig.Targets.StopLoss,
			"take_profit": sig.Targets.TakeProfit,
		},
		sig.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SaveTrade сохраняет сделку из журнала
func (s *InfluxDBStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	fields := map[string]interface{}{
		"id":         trade.ID.String(),
		"price":      trade.Price,
		"quantity":   trade.Quantity,
		"reserved":   trade.Reserved,
		"confidence": trade.Confidence,
	}
	if trade.IsClosing() {
		fields["realized_pnl"] = *trade.RealizedPnL
		fields["exit_price"] = trade.ExitPrice
		fields["hold_seconds"] = trade.HoldDuration.Seconds()
	}

	point := influxdb2.NewPoint(
		"trades",
		map[string]string{
			"symbol":        trade.Symbol,
			"side":          string(trade.Side),
			"position_side": string(trade.PositionSide),
		},
		fields,
		trade.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SaveEquity сохраняет точку кривой капитала после мутации тика
func (s *InfluxDBStorage) SaveEquity(ctx context.Context, snap models.AccountSnapshot, ts time.Time) error {
	point := influxdb2.NewPoint(
		"equity",
		map[string]string{},
		map[string]interface{}{
			"available_cash": snap.AvailableCash,
			"total_pnl":      snap.TotalPnL,
			"day_pnl":        snap.DayPnL,
			"open_positions": len(snap.OpenPositions),
		},
		ts,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// GetSignalHistory возвращает историю сигналов символа, новые первыми
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -7d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.Signal
	for result.Next() {
		record := result.Record()
		sig := &models.Signal{
			Symbol:    symbol,
			Timestamp: record.Time(),
		}
		if v, ok := record.ValueByKey("kind").(string); ok {
			sig.Kind = models.SignalKind(v)
		}
		if v, ok := record.ValueByKey("confidence").(float64); ok {
			sig.Confidence = v
		}
		if v, ok := record.ValueByKey("buy_target").(float64); ok {
			sig.Targets.Buy = v
		}
		if v, ok := record.ValueByKey("sell_target").(float64); ok {
			sig.Targets.Sell = v
		}
		if v, ok := record.ValueByKey("stop_loss").(float64); ok {
			sig.Targets.StopLoss = v
		}
		if v, ok := record.ValueByKey("take_profit").(float64); ok {
			sig.Targets.TakeProfit = v
		}
		signals = append(signals, sig)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка чтения результата: %w", result.Err())
	}

	return signals, nil
}
