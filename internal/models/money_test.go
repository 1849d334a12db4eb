package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMajorUnits(t *testing.T) {
	oneEther := new(big.Int).Set(WeiPerEther)
	assert.Equal(t, "1", FormatMajorUnits(oneEther))

	half := new(big.Int).Div(WeiPerEther, big.NewInt(2))
	assert.Equal(t, "0.5", FormatMajorUnits(half))

	assert.Equal(t, "0", FormatMajorUnits(nil))
	assert.Equal(t, "0", FormatMajorUnits(big.NewInt(0)))
}

func TestDisplayPrice(t *testing.T) {
	// 1e18 minor units at factor 10 displays as "10".
	oneEther := new(big.Int).Set(WeiPerEther)
	assert.Equal(t, "10", DisplayPrice(oneEther, 10))

	half := new(big.Int).Div(WeiPerEther, big.NewInt(2))
	assert.Equal(t, "5", DisplayPrice(half, 10))

	quarter := new(big.Int).Div(WeiPerEther, big.NewInt(4))
	assert.Equal(t, "2.5", DisplayPrice(quarter, 10))

	assert.Equal(t, "0", DisplayPrice(nil, 10))
}
