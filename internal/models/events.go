package models

import "time"

// Event types
const (
	EventTypeItemTransition = "ITEM_TRANSITION"
	EventTypeUserRegistered = "USER_REGISTERED"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemTransitionEvent is published whenever a ledger transition for a tracked
// item is observed on chain.
type ItemTransitionEvent struct {
	BaseEvent
	TokenID     uint64    `json:"token_id"`
	From        string    `json:"from"`
	State       uint8     `json:"state"`
	StateLabel  string    `json:"state_label"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	TxHash      string    `json:"tx_hash"`
	BlockTime   time.Time `json:"block_time"`
}

// UserRegisteredEvent is published after a confirmed user registration.
type UserRegisteredEvent struct {
	BaseEvent
	Address string `json:"address"`
	Name    string `json:"name"`
	Role    uint8  `json:"role"`
}
