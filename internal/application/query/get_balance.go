// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BALANCE QUERY
// Возвращает текущий долг студента (credit amount).
// Для неизвестного студента долг равен нулю: чтение никогда не падает на отсутствии.
// ══════════════════════════════════════════════════════════════════════════════

// GetBalanceQuery содержит параметры запроса баланса.
type GetBalanceQuery struct {
	// StudentID - внешний ID студента.
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q GetBalanceQuery) Validate() error {
	_, err := shared.NewStudentID(q.StudentID)
	return err
}

// BalanceDTO - баланс студента.
type BalanceDTO struct {
	StudentID string          `json:"student_id"`
	Balance   decimal.Decimal `json:"balance"`

	// HasAccount - false, если у студента ещё не было начислений.
	HasAccount bool `json:"has_account"`
}

// GetBalanceHandler обрабатывает GetBalanceQuery.
type GetBalanceHandler struct {
	accounts fees.Reader
}

// NewGetBalanceHandler создаёт новый GetBalanceHandler.
func NewGetBalanceHandler(accounts fees.Reader) *GetBalanceHandler {
	return &GetBalanceHandler{accounts: accounts}
}

// Handle выполняет запрос баланса.
func (h *GetBalanceHandler) Handle(ctx context.Context, q GetBalanceQuery) (*BalanceDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_balance: validation failed: %w", err)
	}

	account, err := h.accounts.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_balance: failed to load account: %w", err)
	}

	if account == nil {
		return &BalanceDTO{StudentID: q.StudentID, Balance: decimal.Zero}, nil
	}

	return &BalanceDTO{
		StudentID:  q.StudentID,
		Balance:    account.Balance().Value(),
		HasAccount: true,
	}, nil
}
