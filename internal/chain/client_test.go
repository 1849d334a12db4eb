package chain

import (
	"errors"
	"fmt"
	"testing"

	"trace-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestEventFilterMatches(t *testing.T) {
	farmer := common.HexToAddress("0x1000000000000000000000000000000000000001")
	retailer := common.HexToAddress("0x71AF60DfAf489E86Ff9dfEEC167D839d0aa0FAe0")
	tokenID := uint64(1700000000000)

	rec := models.EventRecord{
		From:    farmer.Hex(),
		TokenID: tokenID,
		State:   models.StateNew,
	}

	assert.True(t, EventFilter{}.Matches(rec), "empty filter is a wildcard")
	assert.True(t, EventFilter{From: &farmer}.Matches(rec))
	assert.False(t, EventFilter{From: &retailer}.Matches(rec))

	assert.True(t, EventFilter{TokenID: &tokenID}.Matches(rec))
	other := tokenID + 1
	assert.False(t, EventFilter{TokenID: &other}.Matches(rec))

	assert.True(t, EventFilter{States: []uint8{0, 3}}.Matches(rec))
	assert.False(t, EventFilter{States: []uint8{1, 3}}.Matches(rec))

	assert.True(t, EventFilter{
		From:   &farmer,
		States: []uint8{uint8(models.StateNew)},
	}.Matches(rec))
	assert.False(t, EventFilter{
		From:   &farmer,
		States: []uint8{uint8(models.StateDelivered)},
	}.Matches(rec))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrKindRejected, Classify(ErrSignerRejected))
	assert.Equal(t, ErrKindReverted, Classify(ErrTxReverted))
	assert.Equal(t, ErrKindReverted, Classify(errors.New("execution reverted: not the owner")))
	assert.Equal(t, ErrKindRejected, Classify(errors.New("user denied transaction signature")))
	assert.Equal(t, ErrKindTransport, Classify(errors.New("dial tcp: connection refused")))
	assert.Equal(t, ErrKindRejected, Classify(fmt.Errorf("submit: %w", ErrSignerRejected)))
}
