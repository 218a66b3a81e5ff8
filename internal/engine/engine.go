package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skalibog/paperbot/internal/analysis/indicators"
	"github.com/skalibog/paperbot/internal/analysis/signal"
	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/internal/exchange"
	"github.com/skalibog/paperbot/internal/ledger"
	"github.com/skalibog/paperbot/internal/paper"
	"github.com/skalibog/paperbot/internal/storage"
	"github.com/skalibog/paperbot/pkg/logger"
	"github.com/skalibog/paperbot/pkg/models"
	"go.uber.org/zap"
)

// Engine объединяет получение данных, расчет индикаторов,
// классификацию сигналов и применение решений к бумажному счету
type Engine struct {
	cfg        *config.Config
	collector  *exchange.Collector
	store      storage.Storage
	repo       storage.SnapshotRepo
	classifier *signal.Classifier
	paper      *paper.Engine
	symbols    []string
}

// New создает движок. Хранилище и репозиторий снимков опциональны.
func New(cfg *config.Config, client exchange.MarketData, store storage.Storage, repo storage.SnapshotRepo) *Engine {
	if store == nil {
		store = storage.NewNopStorage()
	}

	led := ledger.New(cfg.Trading.InitialCash, cfg.Paper.Timezone, time.Now())

	symbols := make([]string, len(cfg.Trading.Symbols))
	copy(symbols, cfg.Trading.Symbols)
	sort.Strings(symbols)

	return &Engine{
		cfg:        cfg,
		collector:  exchange.NewCollector(client),
		store:      store,
		repo:       repo,
		classifier: signal.NewClassifier(cfg.Paper),
		paper:      paper.NewEngine(cfg.Paper, led),
		symbols:    symbols,
	}
}

// RestoreFromRepo загружает сохраненный снимок счета, если он есть
func (e *Engine) RestoreFromRepo(now time.Time) {
	if e.repo == nil {
		return
	}
	state, err := e.repo.Load()
	if err != nil {
		logger.Info("Снимок счета не загружен, старт с чистого счета", zap.Error(err))
		return
	}
	e.paper.Restore(state.AvailableCash, state.TotalPnL, state.DayPnL, state.Positions, state.Trades, now)
	logger.Info("Состояние счета восстановлено из снимка",
		zap.Float64("cash", state.AvailableCash),
		zap.Int("positions", len(state.Positions)),
		zap.Int("trades", len(state.Trades)))
}

// Tick выполняет один цикл: параллельное обновление данных,
// последовательное применение решений в фиксированном порядке символов
// и безусловный обход выходов после всех входов
func (e *Engine) Tick(ctx context.Context, now time.Time) (map[string]*models.TickResult, models.AccountSnapshot) {
	data := e.refresh(ctx)

	results := make(map[string]*models.TickResult)
	prices := make(map[string]float64)
	var trades []models.Trade

	// Решения применяются строго по очереди: два символа не должны
	// одновременно проверять и резервировать один и тот же баланс
	for _, sym := range e.symbols {
		d := data[sym]
		if d == nil || len(d.Points) == 0 {
			logger.Debug("Нет данных по символу, тик пропущен", zap.String("symbol", sym))
			continue
		}

		price := 0.0
		if d.Quote != nil {
			price = d.Quote.Price
		}
		if price <= 0 {
			// Котировки нет: решений по символу нет, но последняя
			// цена закрытия годится для обхода выходов
			prices[sym] = d.Points[len(d.Points)-1].Close
			continue
		}
		prices[sym] = price

		snap := indicators.Snapshot(d.Points)
		sig := e.classifier.Evaluate(sym, price, snap, now)

		results[sym] = &models.TickResult{
			Symbol:    sym,
			Timestamp: now,
			Price:     price,
			Snapshot:  snap,
			Signal:    sig,
		}

		if trade := e.paper.Apply(sig, price, now); trade != nil {
			trades = append(trades, *trade)
		}

		if err := e.store.SaveSignal(ctx, &sig, price); err != nil {
			logger.Warn("Не удалось сохранить сигнал", zap.String("symbol", sym), zap.Error(err))
		}
		// Свежая свеча уходит в хранилище для истории
		if err := e.store.SaveCandles(ctx, d.Points[len(d.Points)-1:], e.cfg.Trading.Interval); err != nil {
			logger.Warn("Не удалось сохранить свечу", zap.String("symbol", sym), zap.Error(err))
		}
	}

	// Обход условий выхода после всех входов этого тика
	trades = append(trades, e.paper.SweepExits(prices, now)...)

	account := e.paper.Snapshot()
	e.persist(ctx, trades, account, now)

	return results, account
}

// refresh параллельно обновляет рыночные данные всех символов.
// Деградировавший символ не блокирует остальные.
func (e *Engine) refresh(ctx context.Context) map[string]*exchange.SymbolData {
	var mu sync.Mutex
	data := make(map[string]*exchange.SymbolData, len(e.symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range e.symbols {
		sym := sym
		g.Go(func() error {
			d := e.collector.Fetch(gctx, sym, e.cfg.Trading.Interval, e.cfg.Trading.History)
			mu.Lock()
			data[sym] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return data
}

// persist сохраняет сделки, кривую капитала и снимок счета.
// Все записи по возможности: сбой хранилища не прерывает цикл.
func (e *Engine) persist(ctx context.Context, trades []models.Trade, account models.AccountSnapshot, now time.Time) {
	for i := range trades {
		if err := e.store.SaveTrade(ctx, &trades[i]); err != nil {
			logger.Warn("Не удалось сохранить сделку", zap.Error(err))
		}
	}
	if err := e.store.SaveEquity(ctx, account, now); err != nil {
		logger.Warn("Не удалось сохранить кривую капитала", zap.Error(err))
	}

	if e.repo != nil {
		state := &storage.AccountState{
			SavedAt:       now,
			InitialCash:   e.cfg.Trading.InitialCash,
			AvailableCash: account.AvailableCash,
			TotalPnL:      account.TotalPnL,
			DayPnL:        account.DayPnL,
			Positions:     account.OpenPositions,
			Trades:        e.paper.Trades(),
		}
		if err := e.repo.Save(state); err != nil {
			logger.Warn("Не удалось сохранить снимок счета", zap.Error(err))
		}
	}
}

// Account возвращает текущий срез счета
func (e *Engine) Account() models.AccountSnapshot {
	return e.paper.Snapshot()
}

// Reconcile запускает диагностическую сверку журнала с балансом
func (e *Engine) Reconcile() models.ReconcileResult {
	return e.paper.Reconcile()
}

// Stop снимает таймеры выхода и освобождает ресурсы движка позиций
func (e *Engine) Stop() {
	e.paper.Stop()
}
