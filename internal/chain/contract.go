package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TraceabilityABI describes the externally deployed traceability contract.
// The contract itself is out of scope; this service only invokes it.
const TraceabilityABI = `[
  {"type":"event","name":"Transition","inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"state","type":"uint8","indexed":true}],"anonymous":false},
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"role","type":"uint8"},{"name":"tokenId","type":"uint256"},
    {"name":"product","type":"string"},{"name":"batch","type":"string"},
    {"name":"material","type":"string"}],"outputs":[]},
  {"type":"function","name":"transferToNext","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"accept","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"reject","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setPrice","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"recordTemperature","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"},{"name":"minTemp","type":"int256"},
    {"name":"maxTemp","type":"int256"}],"outputs":[]},
  {"type":"function","name":"buy","stateMutability":"payable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"registerUser","stateMutability":"nonpayable","inputs":[
    {"name":"account","type":"address"},{"name":"name","type":"string"},
    {"name":"role","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"getTokenIds","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"tokensOnSale","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"tokensOfOwner","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getTokenAttrs","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[
    {"name":"creator","type":"address"},{"name":"product","type":"string"},
    {"name":"batch","type":"string"},{"name":"material","type":"string"},
    {"name":"price","type":"uint256"},{"name":"minTemp","type":"int256"},
    {"name":"maxTemp","type":"int256"},{"name":"state","type":"uint8"}]},
  {"type":"function","name":"getState","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"getPrice","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTemperature","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[
    {"name":"","type":"int256"},{"name":"","type":"int256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getUserFromAddress","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[
    {"name":"name","type":"string"},{"name":"role","type":"uint8"}]}
]`

// Traceability is a high-level wrapper around the deployed contract.
type Traceability struct {
	abi          abi.ABI
	address      common.Address
	contract     *bind.BoundContract
	transactOpts *bind.TransactOpts
}

// NewTraceability connects to an already-deployed traceability contract.
func NewTraceability(opts *bind.TransactOpts, addr common.Address, backend bind.ContractBackend) (*Traceability, error) {
	parsed, err := abi.JSON(strings.NewReader(TraceabilityABI))
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(addr, parsed, backend, backend, backend)
	return &Traceability{
		abi:          parsed,
		address:      addr,
		contract:     bound,
		transactOpts: opts,
	}, nil
}

// Address returns the deployed contract address.
func (t *Traceability) Address() common.Address {
	return t.address
}

// TransitionTopic returns the log topic of the Transition event.
func (t *Traceability) TransitionTopic() common.Hash {
	return t.abi.Events["Transition"].ID
}

func (t *Traceability) txOpts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	opts := *t.transactOpts
	opts.Context = ctx
	opts.Value = value
	return &opts
}

func (t *Traceability) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// Mint creates a new tracked item. The token identifier is chosen by the
// caller, not the contract.
func (t *Traceability) Mint(ctx context.Context, role uint8, tokenID *big.Int, product, batch, material string) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "mint", role, tokenID, product, batch, material)
}

// TransferToNext hands an item to the next actor in the chain.
func (t *Traceability) TransferToNext(ctx context.Context, to common.Address, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "transferToNext", to, tokenID)
}

// Accept marks a delivered item as accepted by the receiving actor.
func (t *Traceability) Accept(ctx context.Context, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "accept", tokenID)
}

// Reject marks a delivered item as rejected.
func (t *Traceability) Reject(ctx context.Context, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "reject", tokenID)
}

// SetPrice records the minor-unit sale price for an item.
func (t *Traceability) SetPrice(ctx context.Context, tokenID, price *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "setPrice", tokenID, price)
}

// RecordTemperature stores the min/max transit temperature for an item.
func (t *Traceability) RecordTemperature(ctx context.Context, tokenID, minTemp, maxTemp *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "recordTemperature", tokenID, minTemp, maxTemp)
}

// Buy purchases an item on sale, attaching the asked price as value.
func (t *Traceability) Buy(ctx context.Context, tokenID, value *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, value), "buy", tokenID)
}

// RegisterUser records an actor's name and role for an address.
func (t *Traceability) RegisterUser(ctx context.Context, account common.Address, name string, role uint8) (*types.Transaction, error) {
	return t.contract.Transact(t.txOpts(ctx, nil), "registerUser", account, name, role)
}

// GetTokenIds returns every minted token identifier.
func (t *Traceability) GetTokenIds(ctx context.Context) ([]*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getTokenIds"); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// TokensOnSale returns the identifiers currently in the for-sale state.
func (t *Traceability) TokensOnSale(ctx context.Context) ([]*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "tokensOnSale"); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// TokensOfOwner returns the identifiers currently owned by an address.
func (t *Traceability) TokensOfOwner(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "tokensOfOwner", owner); err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// TokenAttrsResult is the ordered attribute tuple the contract returns.
type TokenAttrsResult struct {
	Creator  common.Address
	Product  string
	Batch    string
	Material string
	Price    *big.Int
	MinTemp  *big.Int
	MaxTemp  *big.Int
	State    uint8
}

// GetTokenAttrs reads the full attribute tuple for a token.
func (t *Traceability) GetTokenAttrs(ctx context.Context, tokenID *big.Int) (*TokenAttrsResult, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getTokenAttrs", tokenID); err != nil {
		return nil, err
	}
	return &TokenAttrsResult{
		Creator:  out[0].(common.Address),
		Product:  out[1].(string),
		Batch:    out[2].(string),
		Material: out[3].(string),
		Price:    out[4].(*big.Int),
		MinTemp:  out[5].(*big.Int),
		MaxTemp:  out[6].(*big.Int),
		State:    out[7].(uint8),
	}, nil
}

// GetState reads the current lifecycle state code for a token.
func (t *Traceability) GetState(ctx context.Context, tokenID *big.Int) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getState", tokenID); err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// GetPrice reads the minor-unit price for a token.
func (t *Traceability) GetPrice(ctx context.Context, tokenID *big.Int) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getPrice", tokenID); err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetTemperature reads the recorded min/max transit temperatures.
func (t *Traceability) GetTemperature(ctx context.Context, tokenID *big.Int) (*big.Int, *big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getTemperature", tokenID); err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// OwnerOf returns the current owner of a token.
func (t *Traceability) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "ownerOf", tokenID); err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// GetUserFromAddress looks up the registered actor record for an address.
func (t *Traceability) GetUserFromAddress(ctx context.Context, account common.Address) (string, uint8, error) {
	var out []interface{}
	if err := t.contract.Call(t.callOpts(ctx), &out, "getUserFromAddress", account); err != nil {
		return "", 0, err
	}
	return out[0].(string), out[1].(uint8), nil
}
