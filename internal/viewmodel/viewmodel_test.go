package viewmodel

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trace-service/internal/chain"
	"trace-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	hash    string
	waitErr error
}

func (t *fakeTx) Hash() string                   { return t.hash }
func (t *fakeTx) Wait(ctx context.Context) error { return t.waitErr }

type fakeSub struct {
	once         sync.Once
	unsubscribed atomic.Bool
	errs         chan error
}

func newFakeSub() *fakeSub { return &fakeSub{errs: make(chan error)} }

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() { s.unsubscribed.Store(true) })
}
func (s *fakeSub) Err() <-chan error { return s.errs }

// fakeClient is an in-memory ledger for view-model tests.
type fakeClient struct {
	mu    sync.Mutex
	items map[uint64]*chain.TokenAttrs

	account common.Address

	enumerateCalls atomic.Int32
	mintCalls      atomic.Int32
	writeCalls     atomic.Int32

	// enumerateGate, when set, is called before every enumeration so tests
	// can order overlapping refreshes.
	enumerateGate func(call int32)

	mintErr error
	waitErr error

	subs  []*fakeSub
	sinks []chan<- models.EventRecord
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:   make(map[uint64]*chain.TokenAttrs),
		account: common.HexToAddress("0x1000000000000000000000000000000000000001"),
	}
}

func (f *fakeClient) Account() (common.Address, error) { return f.account, nil }

func (f *fakeClient) TokenIDs(ctx context.Context) ([]uint64, error) {
	call := f.enumerateCalls.Add(1)
	if f.enumerateGate != nil {
		f.enumerateGate(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeClient) TokensOnSale(ctx context.Context) ([]uint64, error) {
	return f.TokenIDs(ctx)
}

func (f *fakeClient) TokensOfOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	return f.TokenIDs(ctx)
}

func (f *fakeClient) TokenAttrs(ctx context.Context, tokenID uint64) (*chain.TokenAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attrs, ok := f.items[tokenID]
	if !ok {
		return nil, errors.New("no such token")
	}
	copied := *attrs
	return &copied, nil
}

func (f *fakeClient) State(ctx context.Context, tokenID uint64) (uint8, error) {
	attrs, err := f.TokenAttrs(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	return attrs.State, nil
}

func (f *fakeClient) Price(ctx context.Context, tokenID uint64) (*big.Int, error) {
	attrs, err := f.TokenAttrs(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if attrs.Price == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(attrs.Price), nil
}

func (f *fakeClient) Temperature(ctx context.Context, tokenID uint64) (int64, int64, error) {
	attrs, err := f.TokenAttrs(ctx, tokenID)
	if err != nil {
		return 0, 0, err
	}
	return attrs.MinTemp, attrs.MaxTemp, nil
}

func (f *fakeClient) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	return f.account, nil
}

func (f *fakeClient) UserByAddress(ctx context.Context, account common.Address) (*models.UserRecord, error) {
	return &models.UserRecord{Address: account.Hex(), Name: "tester"}, nil
}

func (f *fakeClient) Mint(ctx context.Context, role uint8, tokenID uint64, product, batch, material string) (chain.PendingTx, error) {
	f.mintCalls.Add(1)
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	f.mu.Lock()
	f.items[tokenID] = &chain.TokenAttrs{
		Creator:  f.account,
		Product:  product,
		Batch:    batch,
		Material: material,
		State:    uint8(models.StateNew),
	}
	f.mu.Unlock()
	return &fakeTx{hash: "0xmint", waitErr: f.waitErr}, nil
}

func (f *fakeClient) write(tokenID uint64, state models.LifecycleState) (chain.PendingTx, error) {
	f.writeCalls.Add(1)
	f.mu.Lock()
	if attrs, ok := f.items[tokenID]; ok {
		attrs.State = uint8(state)
	}
	f.mu.Unlock()
	return &fakeTx{hash: "0xwrite", waitErr: f.waitErr}, nil
}

func (f *fakeClient) TransferToNext(ctx context.Context, to common.Address, tokenID uint64) (chain.PendingTx, error) {
	return f.write(tokenID, models.StateDelivered)
}

func (f *fakeClient) Accept(ctx context.Context, tokenID uint64) (chain.PendingTx, error) {
	return f.write(tokenID, models.StateAccepted)
}

func (f *fakeClient) Reject(ctx context.Context, tokenID uint64) (chain.PendingTx, error) {
	return f.write(tokenID, models.StateRejected)
}

func (f *fakeClient) SetPrice(ctx context.Context, tokenID uint64, price *big.Int) (chain.PendingTx, error) {
	f.writeCalls.Add(1)
	f.mu.Lock()
	if attrs, ok := f.items[tokenID]; ok {
		attrs.Price = new(big.Int).Set(price)
		attrs.State = uint8(models.StateForSale)
	}
	f.mu.Unlock()
	return &fakeTx{hash: "0xprice", waitErr: f.waitErr}, nil
}

func (f *fakeClient) RecordTemperature(ctx context.Context, tokenID uint64, minTemp, maxTemp int64) (chain.PendingTx, error) {
	f.writeCalls.Add(1)
	return &fakeTx{hash: "0xtemp", waitErr: f.waitErr}, nil
}

func (f *fakeClient) Buy(ctx context.Context, tokenID uint64, value *big.Int) (chain.PendingTx, error) {
	return f.write(tokenID, models.StateSold)
}

func (f *fakeClient) RegisterUser(ctx context.Context, account common.Address, name string, role uint8) (chain.PendingTx, error) {
	f.writeCalls.Add(1)
	return &fakeTx{hash: "0xreg", waitErr: f.waitErr}, nil
}

func (f *fakeClient) SubscribeEvents(ctx context.Context, filter chain.EventFilter, sink chan<- models.EventRecord) (chain.Subscription, error) {
	sub := newFakeSub()
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeClient) FilterHistory(ctx context.Context, tokenID uint64) ([]models.EventRecord, error) {
	return nil, nil
}

func newFarmerVM(fc *fakeClient, opts ...Option) *ViewModel {
	vm := New(Config{
		Role:        models.RoleFarmer,
		Scope:       ScopeAll,
		PriceFactor: 10,
	}, fc, opts...)
	return vm
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMintShowsNewItem(t *testing.T) {
	fc := newFakeClient()
	vm := newFarmerVM(fc, WithClock(func() int64 { return 1700000000000 }))
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionMint, map[string]string{
		"product":  "Wheat",
		"batch":    "B-001",
		"material": "Fertilizer-X",
	})

	snap := vm.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, uint64(1700000000000), snap.Items[0].TokenID)
	assert.Equal(t, "Wheat", snap.Items[0].Product)
	assert.Equal(t, "B-001", snap.Items[0].Batch)
	assert.Equal(t, "Fertilizer-X", snap.Items[0].Material)
	assert.Equal(t, "New", snap.Items[0].StateLabel)
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityInfo, snap.Notification.Severity)
}

func TestEmptyRequiredFieldShortCircuits(t *testing.T) {
	fc := newFakeClient()
	vm := newFarmerVM(fc)
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionMint, map[string]string{
		"product":  "Wheat",
		"batch":    "   ",
		"material": "Fertilizer-X",
	})

	assert.Equal(t, int32(0), fc.mintCalls.Load(), "no network call on empty field")
	assert.Equal(t, int32(0), fc.enumerateCalls.Load(), "no refresh on rejected payload")

	snap := vm.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityWarning, snap.Notification.Severity)
}

func TestConfirmedActionRefreshesExactlyOnce(t *testing.T) {
	fc := newFakeClient()
	vm := newFarmerVM(fc, WithClock(func() int64 { return 1700000000001 }))
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionMint, map[string]string{
		"product":  "Corn",
		"batch":    "B-002",
		"material": "Compost",
	})

	assert.Equal(t, int32(1), fc.mintCalls.Load())
	assert.Equal(t, int32(1), fc.enumerateCalls.Load(), "exactly one refresh per confirmed action")
}

func TestFailedActionDoesNotRefresh(t *testing.T) {
	fc := newFakeClient()
	fc.waitErr = chain.ErrTxReverted
	vm := newFarmerVM(fc, WithClock(func() int64 { return 1700000000002 }))
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionMint, map[string]string{
		"product":  "Rye",
		"batch":    "B-003",
		"material": "Manure",
	})

	assert.Equal(t, int32(0), fc.enumerateCalls.Load(), "no refresh on failed action")

	snap := vm.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityError, snap.Notification.Severity)
}

func TestSignerRejectionIsWarningGrade(t *testing.T) {
	fc := newFakeClient()
	fc.mintErr = chain.ErrSignerRejected
	vm := newFarmerVM(fc, WithClock(func() int64 { return 1700000000003 }))
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionMint, map[string]string{
		"product":  "Oats",
		"batch":    "B-004",
		"material": "Peat",
	})

	snap := vm.Snapshot()
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityWarning, snap.Notification.Severity)
}

func TestLastCompletedRefreshWins(t *testing.T) {
	fc := newFakeClient()
	fc.items[1] = &chain.TokenAttrs{Product: "First", State: uint8(models.StateNew)}

	gateA := make(chan struct{})
	gateB := make(chan struct{})
	fc.enumerateGate = func(call int32) {
		switch call {
		case 1:
			<-gateA
		case 2:
			<-gateB
		}
	}

	vm := newFarmerVM(fc)
	require.NoError(t, vm.Init(context.Background()))

	doneA := make(chan struct{})
	go func() {
		vm.Refresh(context.Background(), "manual")
		close(doneA)
	}()
	waitFor(t, func() bool { return fc.enumerateCalls.Load() == 1 })

	doneB := make(chan struct{})
	go func() {
		vm.Refresh(context.Background(), "manual")
		close(doneB)
	}()
	waitFor(t, func() bool { return fc.enumerateCalls.Load() == 2 })

	// Let the second refresh finish first, then mutate the ledger and
	// release the first: its completion must still replace the snapshot.
	close(gateB)
	<-doneB

	fc.mu.Lock()
	fc.items[1].Product = "Updated"
	fc.mu.Unlock()

	close(gateA)
	<-doneA

	snap := vm.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Updated", snap.Items[0].Product)
	assert.Equal(t, uint64(1), snap.RefreshSeq, "snapshot carries the last completed refresh")
}

func TestEventTriggersRefresh(t *testing.T) {
	fc := newFakeClient()
	vm := New(Config{
		Role:         models.RoleFarmer,
		Scope:        ScopeAll,
		EventFilters: []chain.EventFilter{{}},
	}, fc)
	require.NoError(t, vm.Init(context.Background()))
	require.NoError(t, vm.Subscribe(context.Background()))
	defer vm.Close()

	fc.mu.Lock()
	sink := fc.sinks[0]
	fc.mu.Unlock()

	sink <- models.EventRecord{TokenID: 7, State: models.StateNew}

	waitFor(t, func() bool { return fc.enumerateCalls.Load() >= 1 })
}

func TestCloseSuppressesEvents(t *testing.T) {
	fc := newFakeClient()
	vm := New(Config{
		Role:         models.RoleFarmer,
		Scope:        ScopeAll,
		EventFilters: []chain.EventFilter{{}},
	}, fc)
	require.NoError(t, vm.Init(context.Background()))
	require.NoError(t, vm.Subscribe(context.Background()))

	vm.Close()

	fc.mu.Lock()
	sub := fc.subs[0]
	sink := fc.sinks[0]
	fc.mu.Unlock()

	assert.True(t, sub.unsubscribed.Load(), "close releases the subscription")

	// A late event must not mutate the snapshot.
	sink <- models.EventRecord{TokenID: 9, State: models.StateSold}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), fc.enumerateCalls.Load())
	assert.Zero(t, vm.Snapshot().RefreshSeq)
}

func TestSelectItemTogglesAndGates(t *testing.T) {
	fc := newFakeClient()
	fc.items[5] = &chain.TokenAttrs{Product: "Barley", State: uint8(models.StateNew)}
	vm := newFarmerVM(fc)
	require.NoError(t, vm.Init(context.Background()))

	vm.SelectItem(context.Background(), 5)
	snap := vm.Snapshot()
	assert.Equal(t, uint64(5), snap.SelectedTokenID)
	assert.True(t, snap.CanSetPrice)
	assert.False(t, snap.CanAcceptOrReject)

	vm.SelectItem(context.Background(), 5)
	snap = vm.Snapshot()
	assert.Zero(t, snap.SelectedTokenID)
	assert.False(t, snap.CanSetPrice)
}

func TestMintGuardFlagsCollision(t *testing.T) {
	fc := newFakeClient()
	guard := &fakeGuard{}
	vm := newFarmerVM(fc, WithClock(func() int64 { return 1700000000004 }), WithMintGuard(guard))
	require.NoError(t, vm.Init(context.Background()))

	payload := map[string]string{
		"product":  "Wheat",
		"batch":    "B-005",
		"material": "Fertilizer-X",
	}

	vm.SubmitAction(context.Background(), ActionMint, payload)
	assert.Equal(t, int32(1), fc.mintCalls.Load())

	// Same clock reading: the guard refuses the second claim.
	vm.SubmitAction(context.Background(), ActionMint, payload)
	assert.Equal(t, int32(1), fc.mintCalls.Load(), "duplicate id never reaches the network")

	snap := vm.Snapshot()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityWarning, snap.Notification.Severity)
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[uint64]bool
}

func (g *fakeGuard) ClaimTokenID(ctx context.Context, tokenID uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = make(map[uint64]bool)
	}
	if g.claimed[tokenID] {
		return false, nil
	}
	g.claimed[tokenID] = true
	return true, nil
}

func TestRoleGating(t *testing.T) {
	fc := newFakeClient()
	vm := newFarmerVM(fc)
	require.NoError(t, vm.Init(context.Background()))

	vm.SubmitAction(context.Background(), ActionBuy, map[string]string{"token_id": "5"})

	assert.Equal(t, int32(0), fc.writeCalls.Load())
	snap := vm.Snapshot()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, models.SeverityWarning, snap.Notification.Severity)
}
