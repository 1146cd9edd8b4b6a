package solvererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Shape("stage", "train_cols", 5, "valid_cols", 4)
	assert.Equal(t, "stage: shape mismatch (train_cols=5, valid_cols=4): train_cols and valid_cols must agree", err.Error())

	bare := New(ErrNoTrainedModel, "predict", "")
	assert.Equal(t, "predict: no trained model", bare.Error())
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("session: %w", New(ErrMissingPair, "stage", "valid targets without valid features"))
	assert.True(t, errors.Is(err, ErrMissingPair))
	assert.False(t, errors.Is(err, ErrShapeMismatch))

	var se *Error
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "stage", se.Op)
}
