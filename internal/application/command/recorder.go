// Package command contains write operations (CQRS - Commands).
package command

import "github.com/shopspring/decimal"

// Recorder receives the outcome of fee commands (implemented by the metrics package).
type Recorder interface {
	FeeAdded(amount decimal.Decimal, accountCreated bool)
	FeePaid(amount decimal.Decimal)
	CommandFailed(command string, err error)
}

type nopRecorder struct{}

func (nopRecorder) FeeAdded(decimal.Decimal, bool) {}
func (nopRecorder) FeePaid(decimal.Decimal)        {}
func (nopRecorder) CommandFailed(string, error)    {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
