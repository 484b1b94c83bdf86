package fees

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AMOUNT VALUE OBJECT
// ══════════════════════════════════════════════════════════════════════════════

// Amount представляет неотрицательную денежную сумму.
// Значение неизменяемо: каждая операция возвращает новый Amount.
// Нулевое значение Amount{} корректно и равно нулю.
type Amount struct {
	value decimal.Decimal
}

// NewAmount создаёт сумму из десятичного значения.
// Возвращает ErrInvalidAmount, если значение отрицательное.
func NewAmount(value decimal.Decimal) (Amount, error) {
	if value.IsNegative() {
		return Amount{}, fmt.Errorf("%w: got %s", shared.ErrInvalidAmount, value.String())
	}
	return Amount{value: value}, nil
}

const (
	// MaxFeeScale - максимум знаков после запятой во входящей сумме.
	MaxFeeScale = 2
	// MaxFeeIntegerDigits - входящая сумма строго меньше 10^12.
	MaxFeeIntegerDigits = 12
)

// CheckFeeAmount проверяет размер входящей суммы до любых вычислений.
// Смотрит только на коэффициент и экспоненту, поэтому значения вроде 1e200000000
// отклоняются без построения их десятичной записи.
// Знак не проверяется: отрицательные суммы отклоняет NewAmount.
func CheckFeeAmount(value decimal.Decimal) error {
	if value.IsZero() {
		return nil
	}

	exp := int(value.Exponent())
	digits := value.NumDigits()
	if digits+exp > MaxFeeIntegerDigits {
		return shared.ErrAmountOutOfRange
	}

	if exp < -MaxFeeScale {
		// Лишние знаки допустимы, только если это нули в конце коэффициента.
		drop := -exp - MaxFeeScale
		if drop >= digits {
			return shared.ErrAmountOutOfRange
		}
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(drop)), nil)
		if new(big.Int).Rem(value.Coefficient(), unit).Sign() != 0 {
			return shared.ErrAmountOutOfRange
		}
	}
	return nil
}

// AmountFromInt создаёт сумму из целого числа.
func AmountFromInt(value int64) (Amount, error) {
	return NewAmount(decimal.NewFromInt(value))
}

// ZeroAmount возвращает нулевую сумму.
func ZeroAmount() Amount {
	return Amount{value: decimal.Zero}
}

// Value возвращает десятичное значение суммы.
func (a Amount) Value() decimal.Decimal {
	return a.value
}

// Add складывает две суммы. Сумма неотрицательных значений не может быть отрицательной.
func (a Amount) Add(other Amount) Amount {
	return Amount{value: a.value.Add(other.value)}
}

// Subtract вычитает other из a.
// Возвращает ErrInvalidAmount, если результат отрицательный.
func (a Amount) Subtract(other Amount) (Amount, error) {
	return NewAmount(a.value.Sub(other.value))
}

// Equal сравнивает суммы по значению (100 и 100.00 равны).
func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

// IsZero проверяет, равна ли сумма нулю.
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// String возвращает строковое представление суммы.
func (a Amount) String() string {
	return a.value.String()
}
