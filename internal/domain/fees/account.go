package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT FEE ACCOUNT (AGGREGATE ROOT)
// ══════════════════════════════════════════════════════════════════════════════

// Account - корень агрегата: начисления одного студента и накопленные итоги.
// Инвариант: totalPaid <= totalCharged, поэтому баланс никогда не отрицательный.
type Account struct {
	id           string
	totalCharged Amount
	totalPaid    Amount
	ledger       *Ledger
}

// NewAccount создаёт пустой счёт для студента.
// ID студента назначается снаружи и не меняется.
func NewAccount(studentID string) (*Account, error) {
	sid, err := shared.NewStudentID(studentID)
	if err != nil {
		return nil, err
	}

	return &Account{
		id:           sid.String(),
		totalCharged: ZeroAmount(),
		totalPaid:    ZeroAmount(),
		ledger:       NewLedger(),
	}, nil
}

// ID возвращает ID студента.
func (a *Account) ID() string {
	return a.id
}

// TotalCharged возвращает сумму всех начислений.
func (a *Account) TotalCharged() Amount {
	return a.totalCharged
}

// TotalPaid возвращает сумму всех оплат.
func (a *Account) TotalPaid() Amount {
	return a.totalPaid
}

// Fees возвращает копии начислений в порядке добавления.
func (a *Account) Fees() []Fee {
	return a.ledger.Fees()
}

// Fee возвращает копию начисления по ID.
func (a *Account) Fee(feeID string) (Fee, bool) {
	return a.ledger.Get(feeID)
}

// AddFee добавляет начисление и увеличивает totalCharged.
// При ошибке счёт не меняется.
func (a *Account) AddFee(amount decimal.Decimal, expiration time.Time) (string, error) {
	id, err := a.ledger.AddFee(amount, expiration)
	if err != nil {
		return "", err
	}

	fee, _ := a.ledger.Get(id)
	a.totalCharged = a.totalCharged.Add(fee.amount)

	return id, nil
}

// PayFee оплачивает начисление целиком и увеличивает totalPaid.
// Ошибки ledger (ErrFeeNotFound, ErrFeeAlreadyPaid) возвращаются без изменений.
func (a *Account) PayFee(feeID string) error {
	paid, err := a.ledger.PayFee(feeID)
	if err != nil {
		return err
	}

	a.totalPaid = a.totalPaid.Add(paid)
	return nil
}

// Balance возвращает текущий долг студента: totalCharged - totalPaid.
func (a *Account) Balance() Amount {
	balance, err := a.totalCharged.Subtract(a.totalPaid)
	if err != nil {
		// Недостижимо: AddFee, PayFee и FromRecord сохраняют totalPaid <= totalCharged.
		panic("fees: account " + a.id + " has paid total above charged total")
	}
	return balance
}

// ExpiredFees возвращает неоплаченные начисления со сроком раньше now.
func (a *Account) ExpiredFees(now time.Time) []ExpiredFee {
	return a.ledger.ListExpiredUnpaid(now)
}

// CanAccess возвращает true, если у студента нет просроченных начислений.
func (a *Account) CanAccess(now time.Time) bool {
	return len(a.ExpiredFees(now)) == 0
}
