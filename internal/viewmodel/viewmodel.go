package viewmodel

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"trace-service/internal/chain"
	"trace-service/internal/models"
	"trace-service/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ActionKind names a user intent dispatched from the presentation layer.
type ActionKind string

const (
	ActionMint              ActionKind = "mint"
	ActionTransfer          ActionKind = "transfer"
	ActionAccept            ActionKind = "accept"
	ActionReject            ActionKind = "reject"
	ActionSetPrice          ActionKind = "set_price"
	ActionRecordTemperature ActionKind = "record_temperature"
	ActionBuy               ActionKind = "buy"
)

// requiredFields lists the payload fields that must be non-empty before a
// transaction is submitted. Missing fields never reach the network.
var requiredFields = map[ActionKind][]string{
	ActionMint:              {"product", "batch", "material"},
	ActionTransfer:          {"token_id"},
	ActionAccept:            {"token_id"},
	ActionReject:            {"token_id"},
	ActionSetPrice:          {"token_id", "price"},
	ActionRecordTemperature: {"token_id"},
	ActionBuy:               {"token_id"},
}

var roleActions = map[models.Role][]ActionKind{
	models.RoleFarmer:      {ActionMint, ActionTransfer},
	models.RoleRetailer:    {ActionAccept, ActionReject, ActionSetPrice, ActionTransfer},
	models.RoleTransporter: {ActionTransfer, ActionRecordTemperature},
	models.RoleConsumer:    {ActionBuy},
}

// Scope selects which token identifiers a refresh enumerates.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeOnSale
	ScopeOwned
)

// TelemetrySource supplies the session min/max fed into a ledger
// temperature write.
type TelemetrySource interface {
	MinMax() (minVal, maxVal float64, ok bool)
}

// MintGuard flags client-minted token identifiers already claimed within the
// collision window. A nil guard disables the check.
type MintGuard interface {
	ClaimTokenID(ctx context.Context, tokenID uint64) (bool, error)
}

// Config fixes a view model to one dashboard role.
type Config struct {
	Role models.Role
	// Scope selects the identifier enumeration used on refresh.
	Scope Scope
	// EventFilters are the log subscriptions this role listens on.
	EventFilters []chain.EventFilter
	// NextHop is the fixed transfer destination for this role.
	NextHop common.Address
	// PriceFactor scales major units into the displayed fiat-like figure.
	PriceFactor int64
	// ConsumerLabels switches state labels to the consumer-facing table.
	ConsumerLabels bool
}

// ViewModel keeps one role's displayable snapshot consistent with ledger
// state and mediates user-initiated transactions. The snapshot is always a
// projection of the last completed read; nothing local is authoritative.
type ViewModel struct {
	cfg       Config
	chain     chain.Client
	guard     MintGuard
	telemetry TelemetrySource
	logger    *zap.Logger
	nowMillis func() int64

	mu           sync.Mutex
	snapshot     models.Snapshot
	pendingInput map[string]string
	account      common.Address
	seq          uint64
	completedSeq uint64

	subs      []chain.Subscription
	events    chan models.EventRecord
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*ViewModel)

// WithMintGuard wires the duplicate-token-id guard used on mint.
func WithMintGuard(g MintGuard) Option {
	return func(vm *ViewModel) { vm.guard = g }
}

// WithTelemetry wires the sensor series used by record-temperature.
func WithTelemetry(t TelemetrySource) Option {
	return func(vm *ViewModel) { vm.telemetry = t }
}

// WithClock overrides the millisecond clock used to mint token identifiers.
func WithClock(now func() int64) Option {
	return func(vm *ViewModel) { vm.nowMillis = now }
}

// New creates a view model for one role.
func New(cfg Config, client chain.Client, opts ...Option) *ViewModel {
	vm := &ViewModel{
		cfg:          cfg,
		chain:        client,
		logger:       util.GetLogger().With(zap.String("role", cfg.Role.String())),
		nowMillis:    func() int64 { return time.Now().UnixMilli() },
		pendingInput: make(map[string]string),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Init requests the active account. On failure the view model surfaces a
// warning, leaves loading off so the UI is not stuck, and dependent
// initialization (subscriptions) must be skipped.
func (vm *ViewModel) Init(ctx context.Context) error {
	account, err := vm.chain.Account()
	if err != nil {
		vm.logger.Warn("Account unavailable", zap.Error(err))
		vm.mu.Lock()
		vm.snapshot.Loading = false
		vm.snapshot.Notification = &models.Notification{
			Severity: models.SeverityWarning,
			Message:  "Wallet account unavailable; connect a provider and reload",
		}
		vm.mu.Unlock()
		return err
	}
	vm.mu.Lock()
	vm.account = account
	vm.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current view-model snapshot.
func (vm *ViewModel) Snapshot() models.Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	snap := vm.snapshot
	snap.Items = append([]models.ItemView(nil), vm.snapshot.Items...)
	return snap
}

// Role returns the dashboard role this view model serves.
func (vm *ViewModel) Role() models.Role {
	return vm.cfg.Role
}

// Refresh re-reads ledger state and replaces the snapshot's item list. It
// never returns an error: failures terminate in a notification and the prior
// item list is retained. Overlapping refreshes all run to completion and the
// last one to complete wins; an older refresh overwriting a newer result is
// counted and logged but not discarded.
func (vm *ViewModel) Refresh(ctx context.Context, trigger string) {
	vm.mu.Lock()
	vm.seq++
	seq := vm.seq
	vm.snapshot.Loading = true
	vm.mu.Unlock()

	util.SnapshotRefreshesTotal.WithLabelValues(vm.cfg.Role.String(), trigger).Inc()
	start := time.Now()

	items, note := vm.fetchItems(ctx)

	util.SnapshotRefreshDuration.WithLabelValues(vm.cfg.Role.String()).Observe(time.Since(start).Seconds())

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.snapshot.Loading = false

	if note != nil {
		vm.snapshot.Notification = note
		return
	}

	if seq < vm.completedSeq {
		util.StaleRefreshOverwrites.WithLabelValues(vm.cfg.Role.String()).Inc()
		vm.logger.Warn("Stale refresh overwrote newer snapshot",
			zap.Uint64("refresh_seq", seq),
			zap.Uint64("newest_seq", vm.completedSeq))
	} else {
		vm.completedSeq = seq
	}

	vm.snapshot.Items = items
	vm.snapshot.RefreshSeq = seq
	vm.snapshot.RefreshedAt = time.Now()
}

// fetchItems enumerates the role's token identifiers and reads attributes
// for each. Per-item failures are skipped with a logged diagnostic; only the
// enumeration itself failing aborts the refresh.
func (vm *ViewModel) fetchItems(ctx context.Context) ([]models.ItemView, *models.Notification) {
	ids, err := vm.enumerate(ctx)
	if err != nil {
		util.ChainReadFailures.WithLabelValues("enumerate").Inc()
		vm.logger.Error("Failed to enumerate tokens", zap.Error(err))
		return nil, &models.Notification{
			Severity: models.SeverityError,
			Message:  "Could not load items from the ledger; try again",
		}
	}

	items := make([]models.ItemView, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		attrs, err := vm.chain.TokenAttrs(ctx, id)
		if err != nil {
			util.ChainReadFailures.WithLabelValues("token_attrs").Inc()
			util.SnapshotItemsSkipped.WithLabelValues(vm.cfg.Role.String()).Inc()
			vm.logger.Warn("Skipping unreadable token",
				zap.Uint64("token_id", id),
				zap.Error(err))
			continue
		}
		items = append(items, vm.project(id, attrs))
	}
	return items, nil
}

func (vm *ViewModel) enumerate(ctx context.Context) ([]uint64, error) {
	switch vm.cfg.Scope {
	case ScopeOnSale:
		return vm.chain.TokensOnSale(ctx)
	case ScopeOwned:
		vm.mu.Lock()
		account := vm.account
		vm.mu.Unlock()
		return vm.chain.TokensOfOwner(ctx, account)
	default:
		return vm.chain.TokenIDs(ctx)
	}
}

// project maps raw token attributes onto the role's table row.
func (vm *ViewModel) project(id uint64, attrs *chain.TokenAttrs) models.ItemView {
	state := models.LifecycleState(attrs.State)
	label := state.Label()
	if vm.cfg.ConsumerLabels {
		label = state.ConsumerLabel()
	}

	view := models.ItemView{
		TokenID:    id,
		Product:    attrs.Product,
		Batch:      attrs.Batch,
		Material:   attrs.Material,
		StateCode:  attrs.State,
		StateLabel: label,
		MinTemp:    attrs.MinTemp,
		MaxTemp:    attrs.MaxTemp,
	}
	if attrs.Price != nil && attrs.Price.Sign() > 0 {
		view.PriceMinor = attrs.Price.String()
		view.PriceDisplay = models.DisplayPrice(attrs.Price, vm.cfg.PriceFactor)
	}
	return view
}

// SelectItem toggles selection. Selecting fetches the item's current state
// eagerly to gate the role's action buttons; deselecting clears any buffered
// action input.
func (vm *ViewModel) SelectItem(ctx context.Context, tokenID uint64) {
	vm.mu.Lock()
	if vm.snapshot.SelectedTokenID == tokenID {
		vm.snapshot.SelectedTokenID = 0
		vm.snapshot.CanSetPrice = false
		vm.snapshot.CanAcceptOrReject = false
		vm.pendingInput = make(map[string]string)
		vm.mu.Unlock()
		return
	}
	vm.snapshot.SelectedTokenID = tokenID
	vm.mu.Unlock()

	state, err := vm.chain.State(ctx, tokenID)
	if err != nil {
		util.ChainReadFailures.WithLabelValues("state").Inc()
		vm.logger.Warn("Failed to read state for selected token",
			zap.Uint64("token_id", tokenID),
			zap.Error(err))
		vm.notify(models.SeverityError, "Could not read the selected item's state")
		return
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.snapshot.SelectedTokenID != tokenID {
		return
	}
	vm.snapshot.CanSetPrice = models.LifecycleState(state) == models.StateNew
	vm.snapshot.CanAcceptOrReject = models.LifecycleState(state) == models.StateDelivered
}

// BufferInput stores one form-field edit against the current selection.
func (vm *ViewModel) BufferInput(field, value string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.pendingInput[field] = value
}

// SubmitAction validates the payload, submits the transaction, blocks on
// confirmation and triggers exactly one refresh on success. Failures are
// categorized (signer rejection vs revert vs transport) and terminate in a
// notification with the loading flag cleared; nothing is retried.
func (vm *ViewModel) SubmitAction(ctx context.Context, kind ActionKind, payload map[string]string) {
	if !vm.actionAllowed(kind) {
		vm.notify(models.SeverityWarning, fmt.Sprintf("Action %q is not available for this role", kind))
		return
	}

	merged := vm.mergePayload(payload)

	fields, ok := requiredFields[kind]
	if !ok {
		vm.notify(models.SeverityError, fmt.Sprintf("Unknown action %q", kind))
		return
	}
	for _, field := range fields {
		if strings.TrimSpace(merged[field]) == "" {
			vm.notify(models.SeverityWarning, fmt.Sprintf("Field %q is required", field))
			return
		}
	}

	req, warn := vm.buildRequest(ctx, kind, merged)
	if warn != nil {
		vm.setLoading(false)
		vm.mu.Lock()
		vm.snapshot.Notification = warn
		vm.mu.Unlock()
		return
	}

	vm.setLoading(true)

	pending, err := req.submit(ctx)
	if err != nil {
		vm.failTx(kind, err)
		return
	}
	util.TxSubmittedTotal.WithLabelValues(string(kind)).Inc()
	vm.logger.Info("Transaction submitted",
		zap.String("action", string(kind)),
		zap.String("tx_hash", pending.Hash()))

	start := time.Now()
	if err := pending.Wait(ctx); err != nil {
		vm.failTx(kind, err)
		return
	}
	util.TxConfirmedTotal.WithLabelValues(string(kind)).Inc()
	util.TxConfirmationLatency.Observe(time.Since(start).Seconds())

	vm.mu.Lock()
	vm.snapshot.SelectedTokenID = 0
	vm.snapshot.CanSetPrice = false
	vm.snapshot.CanAcceptOrReject = false
	vm.pendingInput = make(map[string]string)
	vm.snapshot.Notification = &models.Notification{
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("Action %q confirmed", kind),
	}
	vm.mu.Unlock()

	vm.Refresh(ctx, "action")
}

// txRequest is a validated, ready-to-submit transaction.
type txRequest struct {
	submit func(ctx context.Context) (chain.PendingTx, error)
}

// buildRequest parses and validates the payload into a submit closure. A
// non-nil notification means no network call should be made.
func (vm *ViewModel) buildRequest(ctx context.Context, kind ActionKind, payload map[string]string) (*txRequest, *models.Notification) {
	warnf := func(format string, args ...interface{}) *models.Notification {
		return &models.Notification{Severity: models.SeverityWarning, Message: fmt.Sprintf(format, args...)}
	}

	parseToken := func() (uint64, *models.Notification) {
		id, err := strconv.ParseUint(strings.TrimSpace(payload["token_id"]), 10, 64)
		if err != nil || id == 0 {
			return 0, warnf("Invalid token identifier %q", payload["token_id"])
		}
		return id, nil
	}

	switch kind {
	case ActionMint:
		// Token identifiers are minted client-side from the wall clock:
		// non-colliding in practice, not unique by construction.
		tokenID := uint64(vm.nowMillis())
		if vm.guard != nil {
			claimed, err := vm.guard.ClaimTokenID(ctx, tokenID)
			if err != nil {
				vm.logger.Warn("Mint guard unavailable, continuing without it", zap.Error(err))
			} else if !claimed {
				return nil, warnf("Token identifier %d was just used; try again", tokenID)
			}
		}
		product, batch, material := payload["product"], payload["batch"], payload["material"]
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.Mint(ctx, uint8(vm.cfg.Role), tokenID, product, batch, material)
		}}, nil

	case ActionTransfer:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.TransferToNext(ctx, vm.cfg.NextHop, tokenID)
		}}, nil

	case ActionAccept:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.Accept(ctx, tokenID)
		}}, nil

	case ActionReject:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.Reject(ctx, tokenID)
		}}, nil

	case ActionSetPrice:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		price, ok := new(big.Int).SetString(strings.TrimSpace(payload["price"]), 10)
		if !ok || price.Sign() <= 0 {
			return nil, warnf("Invalid price %q; expected a positive minor-unit integer", payload["price"])
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.SetPrice(ctx, tokenID, price)
		}}, nil

	case ActionRecordTemperature:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		if vm.telemetry == nil {
			return nil, warnf("Telemetry feed is not configured")
		}
		minVal, maxVal, ok := vm.telemetry.MinMax()
		if !ok {
			return nil, warnf("No telemetry samples recorded yet")
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			return vm.chain.RecordTemperature(ctx, tokenID, int64(minVal), int64(maxVal))
		}}, nil

	case ActionBuy:
		tokenID, warn := parseToken()
		if warn != nil {
			return nil, warn
		}
		return &txRequest{submit: func(ctx context.Context) (chain.PendingTx, error) {
			price, err := vm.chain.Price(ctx, tokenID)
			if err != nil {
				return nil, fmt.Errorf("failed to read asking price: %w", err)
			}
			return vm.chain.Buy(ctx, tokenID, price)
		}}, nil
	}

	return nil, warnf("Unknown action %q", kind)
}

// Subscribe registers the role's log subscriptions; each matching event
// triggers a refresh. Init must have succeeded first.
func (vm *ViewModel) Subscribe(ctx context.Context) error {
	events := make(chan models.EventRecord, 16)
	for _, filter := range vm.cfg.EventFilters {
		sub, err := vm.chain.SubscribeEvents(ctx, filter, events)
		if err != nil {
			vm.teardownSubs()
			vm.notify(models.SeverityError, "Could not subscribe to ledger events")
			return fmt.Errorf("subscribe events: %w", err)
		}
		vm.mu.Lock()
		vm.subs = append(vm.subs, sub)
		vm.mu.Unlock()
	}

	vm.events = events
	vm.wg.Add(1)
	go vm.dispatch(ctx)
	return nil
}

func (vm *ViewModel) dispatch(ctx context.Context) {
	defer vm.wg.Done()
	for {
		select {
		case <-vm.closed:
			return
		case <-ctx.Done():
			return
		case rec := <-vm.events:
			vm.logger.Debug("Ledger event received",
				zap.Uint64("token_id", rec.TokenID),
				zap.Uint8("state", uint8(rec.State)))
			vm.Refresh(ctx, "event")
		}
	}
}

// Close tears down every subscription and stops event dispatch. Idempotent;
// called on every exit path of the owning session.
func (vm *ViewModel) Close() {
	vm.closeOnce.Do(func() {
		close(vm.closed)
		vm.teardownSubs()
	})
	vm.wg.Wait()
}

func (vm *ViewModel) teardownSubs() {
	vm.mu.Lock()
	subs := vm.subs
	vm.subs = nil
	vm.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (vm *ViewModel) actionAllowed(kind ActionKind) bool {
	for _, allowed := range roleActions[vm.cfg.Role] {
		if allowed == kind {
			return true
		}
	}
	return false
}

// mergePayload overlays the explicit payload on top of buffered form input
// and defaults the token identifier from the current selection.
func (vm *ViewModel) mergePayload(payload map[string]string) map[string]string {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	merged := make(map[string]string, len(vm.pendingInput)+len(payload)+1)
	for k, v := range vm.pendingInput {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	if merged["token_id"] == "" && vm.snapshot.SelectedTokenID != 0 {
		merged["token_id"] = strconv.FormatUint(vm.snapshot.SelectedTokenID, 10)
	}
	return merged
}

func (vm *ViewModel) failTx(kind ActionKind, err error) {
	var note models.Notification
	switch chain.Classify(err) {
	case chain.ErrKindRejected:
		util.TxFailedTotal.WithLabelValues(string(kind), "rejected").Inc()
		note = models.Notification{
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("Transaction for %q was rejected by the signer", kind),
		}
	case chain.ErrKindReverted:
		util.TxFailedTotal.WithLabelValues(string(kind), "reverted").Inc()
		note = models.Notification{
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("The ledger refused the %q action", kind),
		}
	default:
		util.TxFailedTotal.WithLabelValues(string(kind), "transport").Inc()
		note = models.Notification{
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("Could not submit the %q action; check the connection", kind),
		}
	}
	vm.logger.Error("Transaction failed",
		zap.String("action", string(kind)),
		zap.Error(err))

	vm.mu.Lock()
	vm.snapshot.Loading = false
	vm.snapshot.Notification = &note
	vm.mu.Unlock()
}

func (vm *ViewModel) setLoading(loading bool) {
	vm.mu.Lock()
	vm.snapshot.Loading = loading
	vm.mu.Unlock()
}

func (vm *ViewModel) notify(severity models.Severity, message string) {
	vm.mu.Lock()
	vm.snapshot.Notification = &models.Notification{Severity: severity, Message: message}
	vm.mu.Unlock()
}
