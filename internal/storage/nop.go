package storage

import (
	"context"
	"time"

	"github.com/skalibog/paperbot/pkg/models"
)

// NopStorage заглушка хранилища: движок работает и без InfluxDB
type NopStorage struct{}

func NewNopStorage() *NopStorage { return &NopStorage{} }

func (s *NopStorage) SaveCandles(ctx context.Context, points []*models.PricePoint, interval string) error {
	return nil
}

func (s *NopStorage) SaveSignal(ctx context.Context, sig *models.Signal, price float64) error {
	return nil
}

func (s *NopStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return nil
}

func (s *NopStorage) SaveEquity(ctx context.Context, snap models.AccountSnapshot, ts time.Time) error {
	return nil
}

func (s *NopStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	return nil, nil
}

func (s *NopStorage) Close() {}
