package fees

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FEE
// ══════════════════════════════════════════════════════════════════════════════

// Fee представляет одно начисление: сумму, срок оплаты и признак оплаты.
// Сумма и срок фиксируются при создании; меняется только paid (false → true один раз).
type Fee struct {
	id         string
	amount     Amount
	expiration time.Time
	paid       bool
}

// ID возвращает идентификатор начисления.
func (f Fee) ID() string { return f.id }

// Amount возвращает сумму начисления.
func (f Fee) Amount() Amount { return f.amount }

// Expiration возвращает срок оплаты.
func (f Fee) Expiration() time.Time { return f.expiration }

// IsPaid возвращает true, если начисление оплачено.
func (f Fee) IsPaid() bool { return f.paid }

// IsExpired возвращает true для неоплаченного начисления,
// срок которого строго раньше now.
func (f Fee) IsExpired(now time.Time) bool {
	return !f.paid && f.expiration.Before(now)
}

// ExpiredFee - проекция просроченного начисления для чтения.
type ExpiredFee struct {
	Amount     Amount
	Expiration time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - упорядоченный по времени добавления список начислений студента.
// Начисления только добавляются; идентификаторы уникальны в пределах ledger.
type Ledger struct {
	fees  []*Fee
	index map[string]int
}

// NewLedger создаёт пустой ledger.
func NewLedger() *Ledger {
	return &Ledger{
		fees:  make([]*Fee, 0),
		index: make(map[string]int),
	}
}

// AddFee добавляет неоплаченное начисление и возвращает его новый ID.
// Возвращает ErrInvalidAmount для отрицательной суммы; ledger при этом не меняется.
func (l *Ledger) AddFee(amount decimal.Decimal, expiration time.Time) (string, error) {
	value, err := NewAmount(amount)
	if err != nil {
		return "", err
	}

	id := l.nextID()
	l.append(&Fee{
		id:         id,
		amount:     value,
		expiration: expiration,
	})

	return id, nil
}

// PayFee помечает начисление оплаченным и возвращает его сумму.
// Возвращает ErrFeeNotFound или ErrFeeAlreadyPaid; ledger при этом не меняется.
func (l *Ledger) PayFee(id string) (Amount, error) {
	i, ok := l.index[id]
	if !ok {
		return Amount{}, fmt.Errorf("%w: %s", shared.ErrFeeNotFound, id)
	}

	fee := l.fees[i]
	if fee.paid {
		return Amount{}, fmt.Errorf("%w: %s", shared.ErrFeeAlreadyPaid, id)
	}

	fee.paid = true
	return fee.amount, nil
}

// ListExpiredUnpaid возвращает неоплаченные начисления со сроком строго раньше now
// в порядке добавления. Для пустого результата возвращается пустой (не nil) срез.
func (l *Ledger) ListExpiredUnpaid(now time.Time) []ExpiredFee {
	expired := make([]ExpiredFee, 0)
	for _, fee := range l.fees {
		if fee.IsExpired(now) {
			expired = append(expired, ExpiredFee{
				Amount:     fee.amount,
				Expiration: fee.expiration,
			})
		}
	}
	return expired
}

// Fees возвращает копии всех начислений в порядке добавления.
func (l *Ledger) Fees() []Fee {
	out := make([]Fee, len(l.fees))
	for i, fee := range l.fees {
		out[i] = *fee
	}
	return out
}

// Get возвращает копию начисления по ID.
func (l *Ledger) Get(id string) (Fee, bool) {
	i, ok := l.index[id]
	if !ok {
		return Fee{}, false
	}
	return *l.fees[i], true
}

// Len возвращает количество начислений.
func (l *Ledger) Len() int {
	return len(l.fees)
}

// restore добавляет сохранённое начисление как есть, без генерации ID.
func (l *Ledger) restore(fee Fee) error {
	if fee.id == "" {
		return fmt.Errorf("%w: fee without id", shared.ErrInvalidRecord)
	}
	if _, exists := l.index[fee.id]; exists {
		return fmt.Errorf("%w: duplicate fee id %s", shared.ErrInvalidRecord, fee.id)
	}
	l.append(&fee)
	return nil
}

func (l *Ledger) append(fee *Fee) {
	l.index[fee.id] = len(l.fees)
	l.fees = append(l.fees, fee)
}

// nextID генерирует UUID, которого ещё нет в ledger.
func (l *Ledger) nextID() string {
	for {
		id := uuid.NewString()
		if _, taken := l.index[id]; !taken {
			return id
		}
	}
}
