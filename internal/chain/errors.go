package chain

import (
	"errors"
	"strings"
)

// ErrorKind categorizes ledger write failures for user-facing messaging.
// Rejection and revert both leave ledger state unchanged, so no rollback is
// needed beyond clearing the loading flag.
type ErrorKind int

const (
	// ErrKindTransport covers RPC/connection failures and anything that
	// cannot be attributed to the signer or the contract.
	ErrKindTransport ErrorKind = iota
	// ErrKindRejected means the signer declined to sign or broadcast.
	ErrKindRejected
	// ErrKindReverted means the contract refused the state change.
	ErrKindReverted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindRejected:
		return "rejected"
	case ErrKindReverted:
		return "reverted"
	default:
		return "transport"
	}
}

// ErrSignerRejected is returned when the signing backend declines a
// transaction before it reaches the network.
var ErrSignerRejected = errors.New("transaction rejected by signer")

// ErrTxReverted is returned when a confirmed transaction ended with a failed
// receipt status.
var ErrTxReverted = errors.New("transaction reverted")

// Classify maps a write-path error onto the messaging taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindTransport
	}
	if errors.Is(err, ErrSignerRejected) {
		return ErrKindRejected
	}
	if errors.Is(err, ErrTxReverted) {
		return ErrKindReverted
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return ErrKindReverted
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "rejected"):
		return ErrKindRejected
	}
	return ErrKindTransport
}
