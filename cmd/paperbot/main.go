package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/internal/engine"
	"github.com/skalibog/paperbot/internal/exchange"
	"github.com/skalibog/paperbot/internal/storage"
	"github.com/skalibog/paperbot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
	}()

	// Инициализируем хранилище временных рядов
	var store storage.Storage
	if cfg.Storage.Type == "influxdb" {
		influx, err := storage.NewInfluxDBStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		store = influx
	} else {
		store = storage.NewNopStorage()
	}
	defer store.Close()

	// Репозиторий снимков счета
	var repo storage.SnapshotRepo
	if cfg.Storage.SnapshotPath != "" {
		repo = storage.NewFileSnapshotRepo(cfg.Storage.SnapshotPath)
	}

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Создаем движок и восстанавливаем счет
	eng := engine.New(cfg, client, store, repo)
	eng.RestoreFromRepo(time.Now())
	defer eng.Stop()

	// Основной цикл тиков
	ticker := time.NewTicker(time.Duration(cfg.Engine.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	logger.Info("Движок запущен",
		zap.Any("symbols", cfg.Trading.Symbols),
		zap.Int("interval_seconds", cfg.Engine.IntervalSeconds))

	for {
		select {
		case now := <-ticker.C:
			results, account := eng.Tick(ctx, now)
			logger.Info("Тик обработан",
				zap.Int("symbols", len(results)),
				zap.Float64("cash", account.AvailableCash),
				zap.Float64("total_pnl", account.TotalPnL),
				zap.Float64("day_pnl", account.DayPnL),
				zap.Int("open_positions", len(account.OpenPositions)))
		case <-ctx.Done():
			// Диагностическая сверка журнала перед выходом
			result := eng.Reconcile()
			logger.Info("Итог сверки журнала",
				zap.Float64("calculated_balance", result.CalculatedBalance),
				zap.Float64("calculated_pnl", result.CalculatedPnL),
				zap.Float64("drift", result.Drift))
			return
		}
	}
}
