package paper

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skalibog/paperbot/internal/config"
	"github.com/skalibog/paperbot/internal/ledger"
	"github.com/skalibog/paperbot/pkg/logger"
	"github.com/skalibog/paperbot/pkg/models"
	"go.uber.org/zap"
)

// Нарушения контракта вызывающей стороны: вторая позиция по открытому
// символу или закрытие несуществующей позиции. Это ошибки программы,
// они возвращаются громко, а не глотаются.
var (
	ErrPositionExists = errors.New("позиция по символу уже открыта")
	ErrNoPosition     = errors.New("позиция по символу не открыта")
)

// Причины закрытия позиции
const (
	ReasonOpposingSignal = "opposing-signal"
	ReasonTakeProfit     = "take-profit"
	ReasonStopLoss       = "stop-loss"
	ReasonMaxHold        = "max-hold"
	ReasonShutdown       = "shutdown"
)

// Engine конечный автомат позиций: FLAT -> OPEN_LONG|OPEN_SHORT -> FLAT.
// Единственный писатель счета. Все мутации идут под мьютексом:
// проверка и резервирование средств двумя символами одновременно —
// классическая гонка check-then-act.
type Engine struct {
	mu     sync.Mutex
	cfg    config.Paper
	sizer  *Sizer
	ledger *ledger.Ledger

	positions map[string]*models.Position
	lastTrade map[string]time.Time
	lastPrice map[string]float64
	timers    map[string]*time.Timer
}

// NewEngine создает движок позиций поверх журнала
func NewEngine(cfg config.Paper, led *ledger.Ledger) *Engine {
	return &Engine{
		cfg:       cfg,
		sizer:     NewSizer(cfg),
		ledger:    led,
		positions: make(map[string]*models.Position),
		lastTrade: make(map[string]time.Time),
		lastPrice: make(map[string]float64),
		timers:    make(map[string]*time.Timer),
	}
}

// Apply применяет сигнал тика к символу: закрывает позицию по
// встречному сигналу, открывает новую или ничего не делает.
// Возвращает совершенную сделку, если она была.
func (e *Engine) Apply(sig models.Signal, price float64, now time.Time) *models.Trade {
	if price <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastPrice[sig.Symbol] = price
	e.ledger.RolloverIfNeeded(now)

	pos, open := e.positions[sig.Symbol]

	// Встречный сигнал закрывает немедленно, независимо от цены
	if open {
		opposing := (pos.Side == models.SideLong && sig.Kind.IsSell()) ||
			(pos.Side == models.SideShort && sig.Kind.IsBuy())
		if opposing {
			trade := e.closeLocked(pos, price, now, ReasonOpposingSignal, sig.Kind, sig.Confidence)
			return &trade
		}
		return nil
	}

	if sig.Kind == models.SignalHold {
		return nil
	}

	side := models.SideLong
	if sig.Kind.IsSell() {
		side = models.SideShort
	}
	return e.openLocked(sig, side, price, now)
}

// openLocked проверяет условия входа и открывает позицию.
// Вызывается только под мьютексом.
func (e *Engine) openLocked(sig models.Signal, side models.PositionSide, price float64, now time.Time) *models.Trade {
	symbol := sig.Symbol

	if len(e.positions) >= e.cfg.MaxConcurrentPositions {
		return nil
	}

	cooldown := time.Duration(e.cfg.CooldownSeconds) * time.Second
	if last, ok := e.lastTrade[symbol]; ok && now.Sub(last) < cooldown {
		logger.Debug("Вход пропущен: кулдаун", zap.String("symbol", symbol))
		return nil
	}

	if sig.Confidence < e.cfg.MinConfidence {
		return nil
	}

	// Дневной лимит убытка блокирует входы до смены дня
	if e.ledger.DayPnL() <= -e.cfg.MaxDailyLoss {
		logger.Warn("Вход пропущен: достигнут дневной лимит убытка",
			zap.String("symbol", symbol), zap.Float64("day_pnl", e.ledger.DayPnL()))
		return nil
	}

	qty := e.sizer.RiskBoundedQuantity(e.ledger.AvailableCash(), price, sig.Targets.StopLoss)
	if qty <= 0 {
		logger.Debug("Вход пропущен: нулевой размер позиции", zap.String("symbol", symbol))
		return nil
	}

	// Лонг резервирует полную стоимость, шорт — маржинальную долю
	reserved := qty * price
	if side == models.SideShort {
		reserved = qty * price * e.cfg.MarginFractionShorts
	}
	if err := e.ledger.Reserve(reserved); err != nil {
		logger.Debug("Вход пропущен: недостаточно средств",
			zap.String("symbol", symbol), zap.Float64("required", reserved))
		return nil
	}

	pos := &models.Position{
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		AvgPrice:      price,
		EntryTime:     now,
		TargetPrice:   sig.Targets.TakeProfit,
		StopLossPrice: sig.Targets.StopLoss,
		Reserved:      reserved,
	}
	e.positions[symbol] = pos
	e.lastTrade[symbol] = now
	e.scheduleExit(symbol)

	action := models.TradeBuy
	if side == models.SideShort {
		action = models.TradeSell
	}
	trade := models.Trade{
		ID:           uuid.New(),
		Symbol:       symbol,
		Side:         action,
		PositionSide: side,
		Price:        price,
		Quantity:     qty,
		Reserved:     reserved,
		Timestamp:    now,
		SignalKind:   sig.Kind,
		Confidence:   sig.Confidence,
	}
	e.ledger.Append(trade)

	logger.Info("Открыта позиция",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("reserved", reserved))
	return &trade
}

// OpenPosition открывает позицию напрямую, минуя поток тиков.
// Повторное открытие по занятому символу означает обход конечного
// автомата и возвращается как ошибка.
func (e *Engine) OpenPosition(sig models.Signal, side models.PositionSide, price float64, now time.Time) (*models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.positions[sig.Symbol]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, sig.Symbol)
	}
	e.lastPrice[sig.Symbol] = price
	return e.openLocked(sig, side, price, now), nil
}

// ClosePosition закрывает позицию по текущей цене. Отсутствие позиции
// означает обход конечного автомата и возвращается как ошибка.
func (e *Engine) ClosePosition(symbol string, price float64, now time.Time, reason string) (models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if price <= 0 {
		price = e.lastPrice[symbol]
	}
	if price <= 0 {
		price = pos.AvgPrice
	}
	return e.closeLocked(pos, price, now, reason, models.SignalHold, 0), nil
}

// closeLocked полная ликвидация позиции: частичных закрытий нет.
// PnL лонга (выход-вход)*кол-во, шорта (вход-выход)*кол-во. В баланс
// возвращается исходный резерв плюс реализованный PnL.
func (e *Engine) closeLocked(pos *models.Position, price float64, now time.Time, reason string, kind models.SignalKind, confidence float64) models.Trade {
	var pnl float64
	if pos.Side == models.SideLong {
		pnl = (price - pos.AvgPrice) * pos.Quantity
	} else {
		pnl = (pos.AvgPrice - price) * pos.Quantity
	}

	e.ledger.Release(pos.Reserved, pnl)
	delete(e.positions, pos.Symbol)
	e.lastTrade[pos.Symbol] = now
	e.cancelExit(pos.Symbol)

	action := models.TradeSell
	if pos.Side == models.SideShort {
		action = models.TradeBuy
	}
	realized := pnl
	trade := models.Trade{
		ID:           uuid.New(),
		Symbol:       pos.Symbol,
		Side:         action,
		PositionSide: pos.Side,
		Price:        price,
		Quantity:     pos.Quantity,
		Reserved:     pos.Reserved,
		Timestamp:    now,
		SignalKind:   kind,
		Confidence:   confidence,
		Reason:       reason,
		RealizedPnL:  &realized,
		ExitPrice:    price,
		HoldDuration: now.Sub(pos.EntryTime),
	}
	e.ledger.Append(trade)

	logger.Info("Закрыта позиция",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.String("reason", reason),
		zap.Float64("exit", price),
		zap.Float64("pnl", pnl))
	return trade
}

// SweepExits безусловный обход открытых позиций, выполняется каждый
// тик независимо от новых сигналов. Порядок проверки: тейк-профит,
// стоп-лосс, максимальное время удержания.
func (e *Engine) SweepExits(prices map[string]float64, now time.Time) []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []models.Trade
	for symbol, pos := range e.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = e.lastPrice[symbol]
		}
		if price <= 0 {
			continue
		}
		e.lastPrice[symbol] = price

		ret := (price - pos.AvgPrice) / pos.AvgPrice * 100
		if pos.Side == models.SideShort {
			ret = -ret
		}

		var reason string
		switch {
		case ret >= e.cfg.TakeProfitPercent:
			reason = ReasonTakeProfit
		case ret <= -e.cfg.StopLossPercent:
			reason = ReasonStopLoss
		case now.Sub(pos.EntryTime) >= e.maxHold():
			reason = ReasonMaxHold
		default:
			continue
		}
		closed = append(closed, e.closeLocked(pos, price, now, reason, models.SignalHold, 0))
	}
	return closed
}

func (e *Engine) maxHold() time.Duration {
	return time.Duration(e.cfg.MaxHoldMinutes) * time.Minute
}

// scheduleExit взводит отменяемый таймер выхода по времени.
// Срабатывание после закрытия позиции — безопасный no-op.
func (e *Engine) scheduleExit(symbol string) {
	e.cancelExit(symbol)
	e.timers[symbol] = time.AfterFunc(e.maxHold(), func() {
		e.timedExit(symbol)
	})
}

// timedExit закрытие по истечении срока удержания. Идемпотентно:
// если позиции уже нет, ничего не происходит.
func (e *Engine) timedExit(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return
	}
	price := e.lastPrice[symbol]
	if price <= 0 {
		price = pos.AvgPrice
	}
	e.closeLocked(pos, price, time.Now(), ReasonMaxHold, models.SignalHold, 0)
}

func (e *Engine) cancelExit(symbol string) {
	if t, ok := e.timers[symbol]; ok {
		t.Stop()
		delete(e.timers, symbol)
	}
}

// Stop снимает все запланированные таймеры выхода
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol, t := range e.timers {
		t.Stop()
		delete(e.timers, symbol)
	}
}

// Snapshot возвращает срез счета только для чтения
func (e *Engine) Snapshot() models.AccountSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make(map[string]models.Position, len(e.positions))
	for s, p := range e.positions {
		positions[s] = *p
	}
	return models.AccountSnapshot{
		AvailableCash: e.ledger.AvailableCash(),
		TotalPnL:      e.ledger.TotalPnL(),
		DayPnL:        e.ledger.DayPnL(),
		OpenPositions: positions,
		RecentTrades:  e.ledger.RecentTrades(20),
	}
}

// Trades возвращает копию полного журнала сделок
func (e *Engine) Trades() []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Trades()
}

// Reconcile сверяет журнал сделок с балансом. Диагностика: при
// расхождении больше допуска пишется ошибка, баланс не правится.
func (e *Engine) Reconcile() models.ReconcileResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := e.ledger.Reconcile()
	if ledger.HasDrift(result) {
		logger.Error("Сверка журнала выявила расхождение",
			zap.Float64("calculated", result.CalculatedBalance),
			zap.Float64("actual", e.ledger.AvailableCash()),
			zap.Float64("drift", result.Drift))
	}
	return result
}

// Restore восстанавливает счет из сохраненного снимка и заново
// взводит таймеры выхода на остаток срока удержания
func (e *Engine) Restore(cash, totalPnL, dayPnL float64, positions map[string]models.Position, trades []models.Trade, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.Restore(cash, totalPnL, dayPnL, trades)
	for symbol, p := range positions {
		pos := p
		e.positions[symbol] = &pos

		remaining := e.maxHold() - now.Sub(pos.EntryTime)
		if remaining < time.Second {
			remaining = time.Second
		}
		e.cancelExit(symbol)
		e.timers[symbol] = time.AfterFunc(remaining, func() {
			e.timedExit(symbol)
		})
	}
}
