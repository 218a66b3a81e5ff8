package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/skalibog/paperbot/pkg/models"
)

// DriftEpsilon допустимое расхождение сверки в валюте счета
const DriftEpsilon = 0.01

// ErrInsufficientFunds возвращается при попытке зарезервировать
// больше доступных средств
var ErrInsufficientFunds = errors.New("недостаточно свободных средств")

// Ledger ведет денежный баланс, накопители реализованного PnL и
// журнал сделок. Не потокобезопасен сам по себе: единственный
// писатель — движок позиций, он и сериализует доступ.
type Ledger struct {
	initialCash   float64
	availableCash float64
	totalPnL      float64
	dayPnL        float64
	trades        []models.Trade

	timezone string
	dayOpen  time.Time
}

// New создает журнал с начальным балансом
func New(initialCash float64, timezone string, now time.Time) *Ledger {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Ledger{
		initialCash:   initialCash,
		availableCash: initialCash,
		timezone:      timezone,
		dayOpen:       TodayOpen(timezone, now),
	}
}

// AvailableCash возвращает свободные средства
func (l *Ledger) AvailableCash() float64 { return l.availableCash }

// TotalPnL возвращает накопленный реализованный PnL
func (l *Ledger) TotalPnL() float64 { return l.totalPnL }

// DayPnL возвращает реализованный PnL текущего торгового дня
func (l *Ledger) DayPnL() float64 { return l.dayPnL }

// InitialCash возвращает начальный баланс
func (l *Ledger) InitialCash() float64 { return l.initialCash }

// Reserve списывает зарезервированный под позицию капитал
func (l *Ledger) Reserve(amount float64) error {
	if amount <= 0 || amount > l.availableCash {
		return ErrInsufficientFunds
	}
	l.availableCash -= amount
	return nil
}

// Release возвращает исходный резерв и зачисляет реализованный PnL
func (l *Ledger) Release(reserved, pnl float64) {
	l.availableCash += reserved + pnl
	l.totalPnL += pnl
	l.dayPnL += pnl
}

// Append добавляет сделку в журнал. Журнал только растет.
func (l *Ledger) Append(trade models.Trade) {
	l.trades = append(l.trades, trade)
}

// Trades возвращает копию журнала сделок
func (l *Ledger) Trades() []models.Trade {
	out := make([]models.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// RecentTrades возвращает последние n сделок, новые в конце
func (l *Ledger) RecentTrades(n int) []models.Trade {
	if n <= 0 || n > len(l.trades) {
		n = len(l.trades)
	}
	out := make([]models.Trade, n)
	copy(out, l.trades[len(l.trades)-n:])
	return out
}

// RolloverIfNeeded сбрасывает дневной PnL при смене торгового дня.
// Вызывается раз в тик, возвращает true при переходе.
func (l *Ledger) RolloverIfNeeded(now time.Time) bool {
	if SameTradingDay(l.timezone, l.dayOpen, now) {
		return false
	}
	l.dayOpen = TodayOpen(l.timezone, now)
	l.dayPnL = 0
	return true
}

// Restore восстанавливает состояние из сохраненного снимка счета
func (l *Ledger) Restore(availableCash, totalPnL, dayPnL float64, trades []models.Trade) {
	l.availableCash = availableCash
	l.totalPnL = totalPnL
	l.dayPnL = dayPnL
	l.trades = append(l.trades[:0], trades...)
}

// Reconcile повторяет журнал сделок от начального баланса и сравнивает
// с текущими свободными средствами. Открывающая сделка списывает свой
// резерв (полная стоимость лонга или маржа шорта), закрывающая
// возвращает резерв плюс реализованный PnL. Расхождение больше
// DriftEpsilon указывает на ошибку учета и выводится как диагностика.
func (l *Ledger) Reconcile() models.ReconcileResult {
	return Reconcile(l.trades, l.initialCash, l.availableCash)
}

// Reconcile пересчитывает баланс только по журналу сделок
func Reconcile(trades []models.Trade, initialCash, currentCash float64) models.ReconcileResult {
	balance := initialCash
	pnl := 0.0
	for _, t := range trades {
		if t.IsClosing() {
			balance += t.Reserved + *t.RealizedPnL
			pnl += *t.RealizedPnL
		} else {
			balance -= t.Reserved
		}
	}
	return models.ReconcileResult{
		CalculatedBalance: balance,
		CalculatedPnL:     pnl,
		Drift:             currentCash - balance,
	}
}

// HasDrift возвращает true, если расхождение сверки превышает допуск
func HasDrift(r models.ReconcileResult) bool {
	return math.Abs(r.Drift) > DriftEpsilon
}
