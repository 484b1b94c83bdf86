package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	StudentID string `json:"studentId" validate:"required,max=8"`
	Note      string `json:"note"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{StudentID: "s-1"}))

	err := Struct(sample{})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "studentId", verr.Fields[0].Field)
	assert.Equal(t, "required", verr.Fields[0].Rule)

	err = Struct(sample{StudentID: "way-too-long"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "max", verr.Fields[0].Rule)
	assert.Equal(t, "8", verr.Fields[0].Param)
	assert.Contains(t, err.Error(), "studentId must satisfy max=8")
}
