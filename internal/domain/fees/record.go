package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE RECORD
// Плоское представление агрегата для хранилищ: только простые значения.
// ══════════════════════════════════════════════════════════════════════════════

// AccountRecord - сохранённое состояние счёта студента.
type AccountRecord struct {
	ID           string          `json:"id"`
	ChargedTotal decimal.Decimal `json:"credit_amount"`
	PaidTotal    decimal.Decimal `json:"paid_amount"`
	Fees         []FeeRecord     `json:"fees"`
}

// FeeRecord - сохранённое состояние одного начисления.
type FeeRecord struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Expiration time.Time       `json:"expiration"`
	Paid       bool            `json:"paid"`
}

// ToRecord экспортирует внутреннее состояние счёта как есть, без пересчёта итогов.
func (a *Account) ToRecord() AccountRecord {
	fees := make([]FeeRecord, 0, a.ledger.Len())
	for _, fee := range a.ledger.Fees() {
		fees = append(fees, FeeRecord{
			ID:         fee.id,
			Amount:     fee.amount.Value(),
			Expiration: fee.expiration,
			Paid:       fee.paid,
		})
	}

	return AccountRecord{
		ID:           a.id,
		ChargedTotal: a.totalCharged.Value(),
		PaidTotal:    a.totalPaid.Value(),
		Fees:         fees,
	}
}

// FromRecord восстанавливает счёт из записи хранилища.
// Итоги устанавливаются напрямую, начисления добавляются в сохранённом порядке.
// Повреждённая запись (отрицательные суммы, дубли ID, оплачено больше начисленного)
// отклоняется с ErrInvalidRecord.
func FromRecord(record AccountRecord) (*Account, error) {
	account, err := NewAccount(record.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidRecord, err)
	}

	charged, err := NewAmount(record.ChargedTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: charged total: %v", shared.ErrInvalidRecord, err)
	}
	paid, err := NewAmount(record.PaidTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: paid total: %v", shared.ErrInvalidRecord, err)
	}
	if _, err := charged.Subtract(paid); err != nil {
		return nil, fmt.Errorf("%w: paid total %s exceeds charged total %s",
			shared.ErrInvalidRecord, paid, charged)
	}

	for _, fr := range record.Fees {
		amount, err := NewAmount(fr.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: fee %s: %v", shared.ErrInvalidRecord, fr.ID, err)
		}
		if err := account.ledger.restore(Fee{
			id:         fr.ID,
			amount:     amount,
			expiration: fr.Expiration,
			paid:       fr.Paid,
		}); err != nil {
			return nil, err
		}
	}

	account.totalCharged = charged
	account.totalPaid = paid

	return account, nil
}
