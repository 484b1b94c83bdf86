package query

import (
	"context"
	"fmt"
	"time"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACCESS QUERY
// Может ли студент посещать занятия: да, если нет просроченных неоплаченных начислений.
// ══════════════════════════════════════════════════════════════════════════════

// GetAccessQuery содержит параметры запроса доступа.
type GetAccessQuery struct {
	StudentID string
}

// Validate проверяет корректность параметров запроса.
func (q GetAccessQuery) Validate() error {
	_, err := shared.NewStudentID(q.StudentID)
	return err
}

// AccessDTO - решение о доступе.
type AccessDTO struct {
	StudentID    string    `json:"student_id"`
	CanAccess    bool      `json:"can_access"`
	ExpiredCount int       `json:"expired_count"`
	AsOf         time.Time `json:"as_of"`
}

// GetAccessHandler обрабатывает GetAccessQuery.
type GetAccessHandler struct {
	accounts fees.Reader
	clock    timeutil.Clock
}

// NewGetAccessHandler создаёт новый GetAccessHandler.
func NewGetAccessHandler(accounts fees.Reader, clock timeutil.Clock) *GetAccessHandler {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &GetAccessHandler{accounts: accounts, clock: clock}
}

// Handle выполняет запрос. Студент без счёта ничего не должен и допускается.
func (h *GetAccessHandler) Handle(ctx context.Context, q GetAccessQuery) (*AccessDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_access: validation failed: %w", err)
	}

	account, err := h.accounts.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_access: failed to load account: %w", err)
	}

	now := h.clock()
	if account == nil {
		return &AccessDTO{StudentID: q.StudentID, CanAccess: true, AsOf: now}, nil
	}

	expired := account.ExpiredFees(now)
	return &AccessDTO{
		StudentID:    q.StudentID,
		CanAccess:    len(expired) == 0,
		ExpiredCount: len(expired),
		AsOf:         now,
	}, nil
}
