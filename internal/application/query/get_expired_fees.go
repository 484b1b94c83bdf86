package query

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EXPIRED FEES QUERY
// Список неоплаченных начислений, срок которых уже прошёл.
// "Просрочено" вычисляется на момент запроса по часам обработчика.
// ══════════════════════════════════════════════════════════════════════════════

// GetExpiredFeesQuery содержит параметры запроса просроченных начислений.
type GetExpiredFeesQuery struct {
	// StudentID - внешний ID студента.
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q GetExpiredFeesQuery) Validate() error {
	_, err := shared.NewStudentID(q.StudentID)
	return err
}

// ExpiredFeeDTO - одно просроченное начисление.
type ExpiredFeeDTO struct {
	Amount     decimal.Decimal `json:"amount"`
	Expiration time.Time       `json:"expiration"`
}

// ExpiredFeesDTO - результат запроса.
type ExpiredFeesDTO struct {
	StudentID string `json:"student_id"`

	// Fees в порядке добавления; пустой срез, если просрочек нет.
	Fees []ExpiredFeeDTO `json:"fees"`

	// AsOf - момент, на который вычислены просрочки.
	AsOf time.Time `json:"as_of"`
}

// GetExpiredFeesHandler обрабатывает GetExpiredFeesQuery.
type GetExpiredFeesHandler struct {
	accounts fees.Reader
	clock    timeutil.Clock
}

// NewGetExpiredFeesHandler создаёт новый GetExpiredFeesHandler.
// Если clock == nil, используются системные часы.
func NewGetExpiredFeesHandler(accounts fees.Reader, clock timeutil.Clock) *GetExpiredFeesHandler {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &GetExpiredFeesHandler{accounts: accounts, clock: clock}
}

// Handle выполняет запрос.
func (h *GetExpiredFeesHandler) Handle(ctx context.Context, q GetExpiredFeesQuery) (*ExpiredFeesDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_expired_fees: validation failed: %w", err)
	}

	account, err := h.accounts.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_expired_fees: failed to load account: %w", err)
	}

	now := h.clock()
	result := &ExpiredFeesDTO{
		StudentID: q.StudentID,
		Fees:      make([]ExpiredFeeDTO, 0),
		AsOf:      now,
	}
	if account == nil {
		return result, nil
	}

	for _, fee := range account.ExpiredFees(now) {
		result.Fees = append(result.Fees, ExpiredFeeDTO{
			Amount:     fee.Amount.Value(),
			Expiration: fee.Expiration,
		})
	}

	return result, nil
}
