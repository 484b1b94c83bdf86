package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-school/student-fees/internal/domain/shared"
)

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.FeeAdded(decimal.RequireFromString("300.50"), true)
	m.FeeAdded(decimal.NewFromInt(200), false)
	m.FeePaid(decimal.NewFromInt(200))
	m.CommandFailed("pay_fee", fmt.Errorf("pay: %w", shared.ErrFeeAlreadyPaid))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.feesAdded.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feesAdded.WithLabelValues("existing")))
	assert.Equal(t, 500.5, testutil.ToFloat64(m.chargedAmount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feesPaid))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.paidAmount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandFailures.WithLabelValues("pay_fee", "conflict")))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{shared.ErrValidation, "validation"},
		{fmt.Errorf("x: %w", shared.ErrInvalidAmount), "validation"},
		{shared.ErrFeeNotFound, "not_found"},
		{shared.ErrAccountNotFound, "not_found"},
		{shared.ErrFeeAlreadyPaid, "conflict"},
		{shared.ErrInvalidRecord, "corrupt_record"},
		{shared.StoreUnavailable("Save", errors.New("conn reset")), "unavailable"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/student-fees/{studentId}/credit-amount", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/student-fees/"+id+"/credit-amount", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.httpRequests.WithLabelValues(http.MethodGet, "/student-fees/{studentId}/credit-amount", "418"),
	))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "student_fees_http_requests_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
