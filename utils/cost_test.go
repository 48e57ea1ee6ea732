package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	assert.Equal(t, 0, CalculateCost(0, 0))
	assert.Equal(t, CPUCostPerCore, CalculateCost(1, 0))
	assert.Equal(t, RAMCostPerGB, CalculateCost(0, 1))
	assert.Equal(t, 2*CPUCostPerCore+4*RAMCostPerGB, CalculateCost(2, 4))
}

func TestCalculateCostIsLinear(t *testing.T) {
	base := CalculateCost(1, 1)
	assert.Equal(t, 3*base, CalculateCost(3, 3))
}

func TestMinInt(t *testing.T) {
	assert.Equal(t, 2, MinInt(2, 5))
	assert.Equal(t, 2, MinInt(5, 2))
	assert.Equal(t, 4, MinInt(4, 4))
	assert.Equal(t, 0, MinInt(0, 128))
	assert.Equal(t, -1, MinInt(-1, 1))
}
