package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/logger"
	"github.com/music-school/student-fees/pkg/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAY FEE COMMAND
// Settles one fee in full. Partial payments are not supported.
// ══════════════════════════════════════════════════════════════════════════════

// PayFeeCommand identifies the fee to settle.
type PayFeeCommand struct {
	StudentID string `json:"studentId" validate:"required,max=128"`
	FeeID     string `json:"feeId" validate:"required,max=64"`

	// CorrelationID for tracing.
	CorrelationID string `json:"-"`
}

// Validate validates the command.
func (c PayFeeCommand) Validate() error {
	if err := validation.Struct(c); err != nil {
		return shared.WrapError("fees", "PayFee", shared.ErrValidation, "invalid pay fee command", err)
	}
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	return nil
}

// PayFeeResult contains the result of settling a fee.
type PayFeeResult struct {
	StudentID  string
	FeeID      string
	PaidAmount decimal.Decimal
	Balance    decimal.Decimal
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PayFeeHandler handles the PayFeeCommand.
type PayFeeHandler struct {
	accounts fees.Repository
	recorder Recorder
	log      *logger.Logger
}

// NewPayFeeHandler creates a new PayFeeHandler. recorder may be nil.
func NewPayFeeHandler(accounts fees.Repository, recorder Recorder, log *logger.Logger) *PayFeeHandler {
	return &PayFeeHandler{
		accounts: accounts,
		recorder: recorderOrNop(recorder),
		log:      log.With(logger.Component("pay_fee")),
	}
}

// Handle executes the pay fee command.
// Unknown students yield ErrAccountNotFound, unknown fees ErrFeeNotFound,
// and a second payment ErrFeeAlreadyPaid. Nothing is saved on error.
func (h *PayFeeHandler) Handle(ctx context.Context, cmd PayFeeCommand) (*PayFeeResult, error) {
	result, err := h.handle(ctx, cmd)
	if err != nil {
		h.recorder.CommandFailed("pay_fee", err)
		return nil, err
	}
	return result, nil
}

func (h *PayFeeHandler) handle(ctx context.Context, cmd PayFeeCommand) (*PayFeeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("pay_fee: validation failed: %w", err)
	}

	account, err := h.accounts.GetByIDOrFail(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("pay_fee: %w", err)
	}

	if err := account.PayFee(cmd.FeeID); err != nil {
		return nil, fmt.Errorf("pay_fee: %w", err)
	}
	fee, _ := account.Fee(cmd.FeeID)
	paid := fee.Amount()

	if err := h.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("pay_fee: failed to save: %w", err)
	}

	h.recorder.FeePaid(paid.Value())
	h.log.Info("fee paid",
		logger.StudentID(cmd.StudentID),
		logger.FeeID(cmd.FeeID),
		logger.Amount(paid.String()),
		logger.String("correlation_id", cmd.CorrelationID),
	)

	return &PayFeeResult{
		StudentID:  cmd.StudentID,
		FeeID:      cmd.FeeID,
		PaidAmount: paid.Value(),
		Balance:    account.Balance().Value(),
	}, nil
}
