package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/logger"
	"github.com/music-school/student-fees/pkg/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD FEE COMMAND
// Charges a student. The account is created on the first fee.
// ══════════════════════════════════════════════════════════════════════════════

// AddFeeCommand contains the data to charge a student.
type AddFeeCommand struct {
	// StudentID is the externally assigned student ID.
	StudentID string `json:"studentId" validate:"required,max=128"`

	// Amount must not be negative; the domain rejects it otherwise.
	// Its size is bounded by fees.CheckFeeAmount.
	Amount decimal.Decimal `json:"amount"`

	// Expiration is the due date of the fee.
	Expiration time.Time `json:"expiration" validate:"required"`

	// CorrelationID for tracing.
	CorrelationID string `json:"-"`
}

// Validate validates the command shape and the amount size. The sign of the
// amount is left to the domain.
func (c AddFeeCommand) Validate() error {
	if err := validation.Struct(c); err != nil {
		return shared.WrapError("fees", "AddFee", shared.ErrValidation, "invalid add fee command", err)
	}
	if _, err := shared.NewStudentID(c.StudentID); err != nil {
		return err
	}
	return fees.CheckFeeAmount(c.Amount)
}

// AddFeeResult contains the result of charging a student.
type AddFeeResult struct {
	StudentID string

	// FeeID is the ID of the new fee.
	FeeID string

	// Balance is the student's credit amount after the charge.
	Balance decimal.Decimal

	// AccountCreated is true when this was the student's first fee.
	AccountCreated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AddFeeHandler handles the AddFeeCommand.
type AddFeeHandler struct {
	accounts fees.Repository
	recorder Recorder
	log      *logger.Logger
}

// NewAddFeeHandler creates a new AddFeeHandler. recorder may be nil.
func NewAddFeeHandler(accounts fees.Repository, recorder Recorder, log *logger.Logger) *AddFeeHandler {
	return &AddFeeHandler{
		accounts: accounts,
		recorder: recorderOrNop(recorder),
		log:      log.With(logger.Component("add_fee")),
	}
}

// Handle executes the add fee command: load or create, mutate, save.
func (h *AddFeeHandler) Handle(ctx context.Context, cmd AddFeeCommand) (*AddFeeResult, error) {
	result, err := h.handle(ctx, cmd)
	if err != nil {
		h.recorder.CommandFailed("add_fee", err)
		return nil, err
	}
	return result, nil
}

func (h *AddFeeHandler) handle(ctx context.Context, cmd AddFeeCommand) (*AddFeeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("add_fee: validation failed: %w", err)
	}

	account, err := h.accounts.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("add_fee: failed to load account: %w", err)
	}

	created := false
	if account == nil {
		account, err = fees.NewAccount(cmd.StudentID)
		if err != nil {
			return nil, fmt.Errorf("add_fee: failed to open account: %w", err)
		}
		created = true
	}

	feeID, err := account.AddFee(cmd.Amount, cmd.Expiration)
	if err != nil {
		return nil, fmt.Errorf("add_fee: %w", err)
	}

	if err := h.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("add_fee: failed to save: %w", err)
	}

	h.recorder.FeeAdded(cmd.Amount, created)
	h.log.Info("fee added",
		logger.StudentID(cmd.StudentID),
		logger.FeeID(feeID),
		logger.Amount(cmd.Amount.String()),
		logger.Bool("account_created", created),
		logger.String("correlation_id", cmd.CorrelationID),
	)

	return &AddFeeResult{
		StudentID:      cmd.StudentID,
		FeeID:          feeID,
		Balance:        account.Balance().Value(),
		AccountCreated: created,
	}, nil
}
