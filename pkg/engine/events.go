package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a notification emitted after a successful state change. Events
// are the only externally observable effects besides reads; the node
// forwards them to WebSocket subscribers.
type Event interface {
	Name() string
}

type OwnershipTransferred struct {
	Previous common.Address `json:"previous"`
	New      common.Address `json:"new"`
}

type ProviderAdded struct {
	Addr common.Address `json:"addr"`
}

type ProviderRemoved struct {
	Addr common.Address `json:"addr"`
}

type PausedSet struct {
	Paused bool `json:"paused"`
}

type CooldownSet struct {
	Cooldown time.Duration `json:"cooldown"`
}

type BatchOpened struct {
	ID uint64 `json:"id"`
}

type BatchClosed struct {
	ID uint64 `json:"id"`
}

type OrderSubmitted struct {
	Submitter common.Address `json:"submitter"`
	OrderID   uint64         `json:"orderId"`
	BatchID   uint64         `json:"batchId"`
	IsAsk     bool           `json:"isAsk"`
}

type DecryptionRequested struct {
	RequestID RequestID `json:"requestId"`
	BatchID   uint64    `json:"batchId"`
}

type DecryptionCompleted struct {
	RequestID RequestID `json:"requestId"`
	BatchID   uint64    `json:"batchId"`
	AskVolume uint64    `json:"askVolume"`
	BidVolume uint64    `json:"bidVolume"`
}

func (OwnershipTransferred) Name() string { return "ownership_transferred" }
func (ProviderAdded) Name() string        { return "provider_added" }
func (ProviderRemoved) Name() string      { return "provider_removed" }
func (PausedSet) Name() string            { return "paused_set" }
func (CooldownSet) Name() string          { return "cooldown_set" }
func (BatchOpened) Name() string          { return "batch_opened" }
func (BatchClosed) Name() string          { return "batch_closed" }
func (OrderSubmitted) Name() string       { return "order_submitted" }
func (DecryptionRequested) Name() string  { return "decryption_requested" }
func (DecryptionCompleted) Name() string  { return "decryption_completed" }
