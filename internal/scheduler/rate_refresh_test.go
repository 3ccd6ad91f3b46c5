package scheduler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateCache_GetBeforeSetReturnsError(t *testing.T) {
	c := newRateCache()
	_, err := c.Get("usd")
	require.Error(t, err)
}

func TestRateCache_SetThenGet(t *testing.T) {
	c := newRateCache()
	c.set("usd", decimal.NewFromInt(65000))

	rate, err := c.Get("usd")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(65000).Equal(rate))
}

func TestRateCache_CodesAreIndependent(t *testing.T) {
	c := newRateCache()
	c.set("usd", decimal.NewFromInt(65000))

	_, err := c.Get("eur")
	require.Error(t, err, "a refresh for one fiat code must not leak into another")
}
