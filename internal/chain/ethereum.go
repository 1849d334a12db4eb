package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"trace-service/internal/models"
	"trace-service/internal/util"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EthereumClient implements Client over a JSON-RPC connection and the bound
// traceability contract. Subscriptions require a websocket endpoint.
type EthereumClient struct {
	eth      *ethclient.Client
	contract *Traceability
	account  common.Address
	logger   *zap.Logger

	mu          sync.Mutex
	headerTimes map[uint64]time.Time
}

// NewEthereumClient dials the RPC endpoint and binds the deployed contract.
func NewEthereumClient(rpcURL, contractAddr, privateKeyHex string, chainID int64) (*EthereumClient, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid chain private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}

	contract, err := NewTraceability(opts, common.HexToAddress(contractAddr), eth)
	if err != nil {
		return nil, fmt.Errorf("failed to bind contract: %w", err)
	}

	return &EthereumClient{
		eth:         eth,
		contract:    contract,
		account:     opts.From,
		logger:      util.GetLogger(),
		headerTimes: make(map[uint64]time.Time),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EthereumClient) Close() {
	c.eth.Close()
}

// Account returns the signing account address.
func (c *EthereumClient) Account() (common.Address, error) {
	if c.account == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no signing account configured")
	}
	return c.account, nil
}

func (c *EthereumClient) TokenIDs(ctx context.Context) ([]uint64, error) {
	ids, err := c.contract.GetTokenIds(ctx)
	if err != nil {
		return nil, err
	}
	return toUint64s(ids), nil
}

func (c *EthereumClient) TokensOnSale(ctx context.Context) ([]uint64, error) {
	ids, err := c.contract.TokensOnSale(ctx)
	if err != nil {
		return nil, err
	}
	return toUint64s(ids), nil
}

func (c *EthereumClient) TokensOfOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	ids, err := c.contract.TokensOfOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return toUint64s(ids), nil
}

func (c *EthereumClient) TokenAttrs(ctx context.Context, tokenID uint64) (*TokenAttrs, error) {
	res, err := c.contract.GetTokenAttrs(ctx, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return &TokenAttrs{
		Creator:  res.Creator,
		Product:  res.Product,
		Batch:    res.Batch,
		Material: res.Material,
		Price:    res.Price,
		MinTemp:  res.MinTemp.Int64(),
		MaxTemp:  res.MaxTemp.Int64(),
		State:    res.State,
	}, nil
}

func (c *EthereumClient) State(ctx context.Context, tokenID uint64) (uint8, error) {
	return c.contract.GetState(ctx, new(big.Int).SetUint64(tokenID))
}

func (c *EthereumClient) Price(ctx context.Context, tokenID uint64) (*big.Int, error) {
	return c.contract.GetPrice(ctx, new(big.Int).SetUint64(tokenID))
}

func (c *EthereumClient) Temperature(ctx context.Context, tokenID uint64) (int64, int64, error) {
	minTemp, maxTemp, err := c.contract.GetTemperature(ctx, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return 0, 0, err
	}
	return minTemp.Int64(), maxTemp.Int64(), nil
}

func (c *EthereumClient) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	return c.contract.OwnerOf(ctx, new(big.Int).SetUint64(tokenID))
}

func (c *EthereumClient) UserByAddress(ctx context.Context, account common.Address) (*models.UserRecord, error) {
	name, role, err := c.contract.GetUserFromAddress(ctx, account)
	if err != nil {
		return nil, err
	}
	return &models.UserRecord{
		Address: account.Hex(),
		Name:    name,
		Role:    models.Role(role),
	}, nil
}

func (c *EthereumClient) Mint(ctx context.Context, role uint8, tokenID uint64, product, batch, material string) (PendingTx, error) {
	tx, err := c.contract.Mint(ctx, role, new(big.Int).SetUint64(tokenID), product, batch, material)
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) TransferToNext(ctx context.Context, to common.Address, tokenID uint64) (PendingTx, error) {
	tx, err := c.contract.TransferToNext(ctx, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) Accept(ctx context.Context, tokenID uint64) (PendingTx, error) {
	tx, err := c.contract.Accept(ctx, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) Reject(ctx context.Context, tokenID uint64) (PendingTx, error) {
	tx, err := c.contract.Reject(ctx, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) SetPrice(ctx context.Context, tokenID uint64, price *big.Int) (PendingTx, error) {
	tx, err := c.contract.SetPrice(ctx, new(big.Int).SetUint64(tokenID), price)
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) RecordTemperature(ctx context.Context, tokenID uint64, minTemp, maxTemp int64) (PendingTx, error) {
	tx, err := c.contract.RecordTemperature(ctx, new(big.Int).SetUint64(tokenID), big.NewInt(minTemp), big.NewInt(maxTemp))
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) Buy(ctx context.Context, tokenID uint64, value *big.Int) (PendingTx, error) {
	tx, err := c.contract.Buy(ctx, new(big.Int).SetUint64(tokenID), value)
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

func (c *EthereumClient) RegisterUser(ctx context.Context, account common.Address, name string, role uint8) (PendingTx, error) {
	tx, err := c.contract.RegisterUser(ctx, account, name, role)
	if err != nil {
		return nil, err
	}
	return c.pending(tx), nil
}

// SubscribeEvents opens a log subscription on the contract's Transition event
// and forwards decoded records matching the filter to sink.
func (c *EthereumClient) SubscribeEvents(ctx context.Context, filter EventFilter, sink chan<- models.EventRecord) (Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract.Address()},
		Topics:    [][]common.Hash{{c.contract.TransitionTopic()}},
	}

	logs := make(chan types.Log, 16)
	ethSub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to contract logs: %w", err)
	}

	sub := &eventSubscription{
		unsub: ethSub.Unsubscribe,
		done:  make(chan struct{}),
		errc:  make(chan error, 1),
	}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case err := <-ethSub.Err():
				if err != nil {
					util.ChainSubscriptionErrors.Inc()
					select {
					case sub.errc <- err:
					default:
					}
				}
				return
			case lg := <-logs:
				rec, ok := c.decodeTransition(ctx, lg)
				if !ok {
					continue
				}
				util.ChainEventsReceived.Inc()
				if !filter.Matches(rec) {
					continue
				}
				select {
				case sink <- rec:
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub, nil
}

// FilterHistory queries past Transition events for one token, oldest first.
// Ordering is by (block number, log index) regardless of provider order.
func (c *EthereumClient) FilterHistory(ctx context.Context, tokenID uint64) ([]models.EventRecord, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract.Address()},
		Topics: [][]common.Hash{
			{c.contract.TransitionTopic()},
			nil,
			{common.BigToHash(new(big.Int).SetUint64(tokenID))},
		},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query event history: %w", err)
	}

	records := make([]models.EventRecord, 0, len(logs))
	for _, lg := range logs {
		rec, ok := c.decodeTransition(ctx, lg)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})

	return records, nil
}

func (c *EthereumClient) decodeTransition(ctx context.Context, lg types.Log) (models.EventRecord, bool) {
	if len(lg.Topics) != 4 || lg.Removed {
		return models.EventRecord{}, false
	}
	return models.EventRecord{
		From:        common.HexToAddress(lg.Topics[1].Hex()).Hex(),
		TokenID:     new(big.Int).SetBytes(lg.Topics[2].Bytes()).Uint64(),
		State:       models.LifecycleState(new(big.Int).SetBytes(lg.Topics[3].Bytes()).Uint64()),
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
		TxHash:      lg.TxHash.Hex(),
		BlockTime:   c.blockTime(ctx, lg.BlockNumber),
	}, true
}

// blockTime resolves a block's timestamp, caching per block. A failed lookup
// degrades to a zero time rather than failing the event.
func (c *EthereumClient) blockTime(ctx context.Context, number uint64) time.Time {
	c.mu.Lock()
	if t, ok := c.headerTimes[number]; ok {
		c.mu.Unlock()
		return t
	}
	c.mu.Unlock()

	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		c.logger.Warn("Failed to resolve block time",
			zap.Uint64("block", number),
			zap.Error(err))
		return time.Time{}
	}

	t := time.Unix(int64(header.Time), 0).UTC()
	c.mu.Lock()
	c.headerTimes[number] = t
	c.mu.Unlock()
	return t
}

// pending wraps a broadcast transaction so callers can await confirmation.
func (c *EthereumClient) pending(tx *types.Transaction) PendingTx {
	return &ethPendingTx{tx: tx, backend: c.eth}
}

type ethPendingTx struct {
	tx      *types.Transaction
	backend *ethclient.Client
}

func (p *ethPendingTx) Hash() string {
	return p.tx.Hash().Hex()
}

// Wait blocks until the transaction is mined. A failed receipt status maps to
// ErrTxReverted so callers can distinguish revert from transport failure.
func (p *ethPendingTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: tx %s", ErrTxReverted, p.tx.Hash().Hex())
	}
	return nil
}

type eventSubscription struct {
	once  sync.Once
	unsub func()
	done  chan struct{}
	errc  chan error
}

// Unsubscribe releases the underlying log subscription. Safe to call more
// than once and from any teardown path.
func (s *eventSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.unsub()
	})
}

func (s *eventSubscription) Err() <-chan error {
	return s.errc
}

func toUint64s(in []*big.Int) []uint64 {
	out := make([]uint64, 0, len(in))
	for _, v := range in {
		out = append(out, v.Uint64())
	}
	return out
}
