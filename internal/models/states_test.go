package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelNeverEmpty(t *testing.T) {
	for code := 0; code < 256; code++ {
		state := LifecycleState(code)
		assert.NotEmpty(t, state.Label(), "state %d", code)
		assert.NotEmpty(t, state.ConsumerLabel(), "state %d", code)
	}
}

func TestKnownLabels(t *testing.T) {
	assert.Equal(t, "New", StateNew.Label())
	assert.Equal(t, "Delivered", StateDelivered.Label())
	assert.Equal(t, "For sale", StateForSale.Label())
	assert.Equal(t, "Sold", StateSold.Label())
	assert.Equal(t, "Unknown", LifecycleState(42).Label())
}

func TestConsumerLabels(t *testing.T) {
	assert.Equal(t, "En venta", LifecycleState(5).ConsumerLabel())
	assert.Equal(t, "Vendido", LifecycleState(8).ConsumerLabel())
	assert.Equal(t, "Desconocido", LifecycleState(99).ConsumerLabel())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("farmer")
	assert.True(t, ok)
	assert.Equal(t, RoleFarmer, role)

	role, ok = ParseRole("consumer")
	assert.True(t, ok)
	assert.Equal(t, RoleConsumer, role)

	_, ok = ParseRole("auditor")
	assert.False(t, ok)
}
