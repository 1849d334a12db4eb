package chain

import (
	"context"
	"math/big"

	"trace-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// EventFilter selects a subset of ledger transition events. A nil field is a
// wildcard; States matches any of the listed codes (empty = any).
type EventFilter struct {
	From    *common.Address
	TokenID *uint64
	States  []uint8
}

// Matches reports whether an observed event passes the filter.
func (f EventFilter) Matches(rec models.EventRecord) bool {
	if f.From != nil && f.From.Hex() != rec.From {
		return false
	}
	if f.TokenID != nil && *f.TokenID != rec.TokenID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if s == uint8(rec.State) {
			return true
		}
	}
	return false
}

// Subscription is the scoped handle returned by SubscribeEvents. Unsubscribe
// is idempotent; callers release it on every exit path of the owning session.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// PendingTx is a submitted but not yet confirmed transaction. Wait blocks
// until the ledger confirms or rejects it; there is no client-side timeout
// beyond the supplied context.
type PendingTx interface {
	Hash() string
	Wait(ctx context.Context) error
}

// TokenAttrs is the decoded per-token attribute tuple.
type TokenAttrs struct {
	Creator  common.Address
	Product  string
	Batch    string
	Material string
	Price    *big.Int
	MinTemp  int64
	MaxTemp  int64
	State    uint8
}

// Client is the capability set the view model needs from the ledger: reads,
// writes, confirmation waits and log subscriptions. Implementations must be
// safe for concurrent use.
type Client interface {
	// Account returns the active signing account. Errors here mean the
	// identity provider is unavailable and dependent initialization halts.
	Account() (common.Address, error)

	TokenIDs(ctx context.Context) ([]uint64, error)
	TokensOnSale(ctx context.Context) ([]uint64, error)
	TokensOfOwner(ctx context.Context, owner common.Address) ([]uint64, error)
	TokenAttrs(ctx context.Context, tokenID uint64) (*TokenAttrs, error)
	State(ctx context.Context, tokenID uint64) (uint8, error)
	Price(ctx context.Context, tokenID uint64) (*big.Int, error)
	Temperature(ctx context.Context, tokenID uint64) (minTemp, maxTemp int64, err error)
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	UserByAddress(ctx context.Context, account common.Address) (*models.UserRecord, error)

	Mint(ctx context.Context, role uint8, tokenID uint64, product, batch, material string) (PendingTx, error)
	TransferToNext(ctx context.Context, to common.Address, tokenID uint64) (PendingTx, error)
	Accept(ctx context.Context, tokenID uint64) (PendingTx, error)
	Reject(ctx context.Context, tokenID uint64) (PendingTx, error)
	SetPrice(ctx context.Context, tokenID uint64, price *big.Int) (PendingTx, error)
	RecordTemperature(ctx context.Context, tokenID uint64, minTemp, maxTemp int64) (PendingTx, error)
	Buy(ctx context.Context, tokenID uint64, value *big.Int) (PendingTx, error)
	RegisterUser(ctx context.Context, account common.Address, name string, role uint8) (PendingTx, error)

	// SubscribeEvents delivers events matching the filter to sink until the
	// subscription is released or ctx is cancelled.
	SubscribeEvents(ctx context.Context, filter EventFilter, sink chan<- models.EventRecord) (Subscription, error)

	// FilterHistory returns the full transition history of a token, oldest
	// first, ordered by block number then log index.
	FilterHistory(ctx context.Context, tokenID uint64) ([]models.EventRecord, error)
}
