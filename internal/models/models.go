package models

import (
	"math/big"
	"time"
)

// TrackedItem is the on-chain record of a traced product. It is mutated only
// by confirmed transactions on the ledger; this service reads it and requests
// mutations, never writes it locally.
type TrackedItem struct {
	TokenID  uint64         `json:"token_id"`
	Creator  string         `json:"creator"`
	Product  string         `json:"product"`
	Batch    string         `json:"batch"`
	Material string         `json:"material"`
	State    LifecycleState `json:"state"`
	Price    *big.Int       `json:"-"`
	MinTemp  int64          `json:"min_temp"`
	MaxTemp  int64          `json:"max_temp"`
}

// UserRecord is an on-chain actor looked up by address.
type UserRecord struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
}

// EventRecord is one entry of the ledger's append-only transition log.
type EventRecord struct {
	From        string         `db:"from_address" json:"from"`
	TokenID     uint64         `db:"token_id" json:"token_id"`
	State       LifecycleState `db:"state" json:"state"`
	BlockNumber uint64         `db:"block_number" json:"block_number"`
	LogIndex    uint           `db:"log_index" json:"log_index"`
	TxHash      string         `db:"tx_hash" json:"tx_hash"`
	BlockTime   time.Time      `db:"block_time" json:"block_time"`
}

// Severity of a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is the terminal form of every failure (and success) path; the
// presentation layer renders it, nothing is ever propagated as a fault.
type Notification struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ItemView is one row of a role's item table.
type ItemView struct {
	TokenID      uint64 `json:"token_id"`
	Product      string `json:"product"`
	Batch        string `json:"batch"`
	Material     string `json:"material"`
	StateCode    uint8  `json:"state_code"`
	StateLabel   string `json:"state_label"`
	PriceMinor   string `json:"price_minor,omitempty"`
	PriceDisplay string `json:"price_display,omitempty"`
	MinTemp      int64  `json:"min_temp,omitempty"`
	MaxTemp      int64  `json:"max_temp,omitempty"`
}

// Snapshot is the ephemeral, per-session projection of ledger state. It is
// rebuilt wholesale on every refresh; no field in it is authoritative.
type Snapshot struct {
	Items             []ItemView    `json:"items"`
	Loading           bool          `json:"loading"`
	SelectedTokenID   uint64        `json:"selected_token_id,omitempty"`
	CanSetPrice       bool          `json:"can_set_price"`
	CanAcceptOrReject bool          `json:"can_accept_or_reject"`
	Notification      *Notification `json:"notification,omitempty"`
	RefreshSeq        uint64        `json:"refresh_seq"`
	RefreshedAt       time.Time     `json:"refreshed_at"`
}

// HistoryCard is one step of an item's traced journey, shown on the consumer
// page. Enriched from the event log plus per-token reads.
type HistoryCard struct {
	TokenID      uint64      `json:"token_id"`
	Owner        string      `json:"owner"`
	StateLabel   string      `json:"state_label"`
	PriceDisplay string      `json:"price_display"`
	MinTemp      int64       `json:"min_temp"`
	MaxTemp      int64       `json:"max_temp"`
	Product      string      `json:"product"`
	Batch        string      `json:"batch"`
	Material     string      `json:"material"`
	User         *UserRecord `json:"user,omitempty"`
	BlockNumber  uint64      `json:"block_number"`
	BlockTime    time.Time   `json:"block_time"`
	TxHash       string      `json:"tx_hash"`
}

// TelemetrySample is a single scalar reading from the external sensor feed.
type TelemetrySample struct {
	ID    int64     `db:"id" json:"id"`
	Value float64   `db:"value" json:"value"`
	At    time.Time `db:"sampled_at" json:"at"`
}
