package inventory

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateMergesAndSorts(t *testing.T) {
	got, err := Aggregate([]Line{
		{ProductID: "mouse", Quantity: 1},
		{ProductID: "laptop", Quantity: 2},
		{ProductID: "mouse", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "laptop", Quantity: 2}, {ProductID: "mouse", Quantity: 4}}, got)
}

func TestAggregateRejectsNonPositive(t *testing.T) {
	_, err := Aggregate([]Line{{ProductID: "mouse", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAggregateRejectsOverflowingSum(t *testing.T) {
	_, err := Aggregate([]Line{{ProductID: "laptop", Quantity: math.MaxInt}, {ProductID: "laptop", Quantity: math.MaxInt}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Aggregate([]Line{{ProductID: "laptop", Quantity: MaxLineQuantity}, {ProductID: "laptop", Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	got, err := Aggregate([]Line{{ProductID: "laptop", Quantity: MaxLineQuantity - 1}, {ProductID: "laptop", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, MaxLineQuantity, got[0].Quantity)
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: "laptop", Requested: 3, Available: 1}
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "available 1")

	var ise *InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "laptop", ise.ProductID)

	assert.ErrorIs(t, &NotFoundError{ProductID: "x"}, ErrNotFound)
}
