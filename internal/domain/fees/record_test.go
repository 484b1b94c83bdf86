package fees

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-school/student-fees/internal/domain/shared"
)

func TestToRecord(t *testing.T) {
	account := newTestAccount(t)
	id1, _ := account.AddFee(decimal.NewFromInt(100), date(2025, 1, 1))
	id2, _ := account.AddFee(decimal.RequireFromString("49.99"), date(2030, 1, 1))
	require.NoError(t, account.PayFee(id1))

	record := account.ToRecord()

	assert.Equal(t, "student-1", record.ID)
	assert.Equal(t, "149.99", record.ChargedTotal.String())
	assert.Equal(t, "100", record.PaidTotal.String())
	require.Len(t, record.Fees, 2)
	assert.Equal(t, id1, record.Fees[0].ID)
	assert.True(t, record.Fees[0].Paid)
	assert.Equal(t, id2, record.Fees[1].ID)
	assert.False(t, record.Fees[1].Paid)
	assert.Equal(t, date(2030, 1, 1), record.Fees[1].Expiration)
}

func TestRecord_RoundTrip(t *testing.T) {
	account := newTestAccount(t)
	id1, _ := account.AddFee(decimal.NewFromInt(300), date(2025, 3, 1))
	_, _ = account.AddFee(decimal.NewFromInt(400), date(2025, 3, 1))
	_, _ = account.AddFee(decimal.NewFromInt(500), date(2030, 3, 1))
	require.NoError(t, account.PayFee(id1))

	restored, err := FromRecord(account.ToRecord())
	require.NoError(t, err)

	now := date(2027, 1, 1)
	assert.Equal(t, account.ID(), restored.ID())
	assert.True(t, account.Balance().Equal(restored.Balance()))
	assert.Equal(t, account.ExpiredFees(now), restored.ExpiredFees(now))
	assert.Equal(t, account.ToRecord(), restored.ToRecord())

	// behaviour after reload matches the original
	assert.ErrorIs(t, restored.PayFee(id1), shared.ErrFeeAlreadyPaid)
}

func TestRecord_EmptyAccountRoundTrip(t *testing.T) {
	account := newTestAccount(t)

	restored, err := FromRecord(account.ToRecord())
	require.NoError(t, err)
	assert.True(t, restored.Balance().IsZero())
	assert.NotNil(t, restored.ToRecord().Fees)
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	account := newTestAccount(t)
	_, _ = account.AddFee(decimal.RequireFromString("12.50"), date(2025, 3, 1))

	data, err := json.Marshal(account.ToRecord())
	require.NoError(t, err)

	var record AccountRecord
	require.NoError(t, json.Unmarshal(data, &record))

	restored, err := FromRecord(record)
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(restored.Balance()))
	assert.Equal(t, account.Fees()[0].ID(), restored.Fees()[0].ID())
}

func TestFromRecord_RejectsCorruptRecords(t *testing.T) {
	valid := func() AccountRecord {
		return AccountRecord{
			ID:           "student-1",
			ChargedTotal: decimal.NewFromInt(100),
			PaidTotal:    decimal.NewFromInt(40),
			Fees: []FeeRecord{
				{ID: "f1", Amount: decimal.NewFromInt(60), Expiration: date(2030, 1, 1)},
				{ID: "f2", Amount: decimal.NewFromInt(40), Expiration: date(2030, 1, 1), Paid: true},
			},
		}
	}

	_, err := FromRecord(valid())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *AccountRecord)
	}{
		{"empty id", func(r *AccountRecord) { r.ID = "" }},
		{"negative charged", func(r *AccountRecord) { r.ChargedTotal = decimal.NewFromInt(-1) }},
		{"negative paid", func(r *AccountRecord) { r.PaidTotal = decimal.NewFromInt(-1) }},
		{"paid above charged", func(r *AccountRecord) { r.PaidTotal = decimal.NewFromInt(101) }},
		{"negative fee", func(r *AccountRecord) { r.Fees[0].Amount = decimal.NewFromInt(-60) }},
		{"duplicate fee id", func(r *AccountRecord) { r.Fees[1].ID = "f1" }},
		{"fee without id", func(r *AccountRecord) { r.Fees[0].ID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid()
			tt.mutate(&record)

			account, err := FromRecord(record)
			assert.Nil(t, account)
			assert.ErrorIs(t, err, shared.ErrInvalidRecord)
		})
	}
}
