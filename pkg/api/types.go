package api

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ==============================
// Request types
// ==============================

// SubmitOrderRequest carries an opaque order plus the submitter's
// signature over OrderSigningMessage.
type SubmitOrderRequest struct {
	AssetID   hexutil.Bytes `json:"assetId"`
	Amount    hexutil.Bytes `json:"amount"`
	Price     hexutil.Bytes `json:"price"`
	Expiry    hexutil.Bytes `json:"expiry,omitempty"`
	IsAsk     bool          `json:"isAsk"`
	Nonce     uint64        `json:"nonce"`
	Signature hexutil.Bytes `json:"signature"`
}

// AdminRequest is the envelope for owner operations. Action selects the
// engine call; the relevant parameter fields must be set for it.
type AdminRequest struct {
	Action     string          `json:"action"` // open_batch, close_batch, add_provider, remove_provider, transfer_ownership, set_paused, set_cooldown, request_decryption
	Address    *common.Address `json:"address,omitempty"`
	Paused     *bool           `json:"paused,omitempty"`
	CooldownMs *uint64         `json:"cooldownMs,omitempty"`
	BatchID    *uint64         `json:"batchId,omitempty"`
	Nonce      uint64          `json:"nonce"`
	Signature  hexutil.Bytes   `json:"signature"`
}

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

// ==============================
// Response types
// ==============================

type SubmitOrderResponse struct {
	OrderID uint64 `json:"orderId"`
	BatchID uint64 `json:"batchId"`
}

type AdminResponse struct {
	OK        bool          `json:"ok"`
	BatchID   uint64        `json:"batchId,omitempty"`
	RequestID hexutil.Bytes `json:"requestId,omitempty"`
}

type BatchInfo struct {
	ID   uint64 `json:"id"`
	Open bool   `json:"open"`
}

type OrderInfo struct {
	ID        uint64         `json:"id"`
	Submitter common.Address `json:"submitter"`
	AssetID   hexutil.Bytes  `json:"assetId"`
	Amount    hexutil.Bytes  `json:"amount"`
	Price     hexutil.Bytes  `json:"price"`
	Expiry    hexutil.Bytes  `json:"expiry,omitempty"`
	IsAsk     bool           `json:"isAsk"`
}

type ContextInfo struct {
	RequestID hexutil.Bytes `json:"requestId"`
	BatchID   uint64        `json:"batchId"`
	StateHash hexutil.Bytes `json:"stateHash"`
	Processed bool          `json:"processed"`
}

type AccessInfo struct {
	Owner      common.Address   `json:"owner"`
	Paused     bool             `json:"paused"`
	CooldownMs int64            `json:"cooldownMs"`
	Providers  []common.Address `json:"providers"`
}

type StatusInfo struct {
	Height     uint64 `json:"height"`
	OrderCount uint64 `json:"orderCount"`
	BatchID    uint64 `json:"batchId"`
	BatchOpen  bool   `json:"batchOpen"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WSEvent is the envelope for broadcast notifications.
type WSEvent struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// ==============================
// Signing payloads
// ==============================

// Domain separation tags keep order and admin signatures from being
// replayable against each other.
const (
	orderSigningTag = "batching/order/v1"
	adminSigningTag = "batching/admin/v1"
)

// OrderSigningMessage is the canonical byte message a submitter signs.
// Each variable-width field is length-prefixed so field boundaries cannot
// be shifted.
func OrderSigningMessage(assetID, amount, price, expiry []byte, isAsk bool, nonce uint64) []byte {
	msg := []byte(orderSigningTag)
	msg = appendUint64(msg, nonce)
	if isAsk {
		msg = append(msg, 1)
	} else {
		msg = append(msg, 0)
	}
	for _, f := range [][]byte{assetID, amount, price, expiry} {
		msg = appendUint64(msg, uint64(len(f)))
		msg = append(msg, f...)
	}
	return msg
}

// AdminSigningMessage is the canonical byte message the owner signs for an
// admin action.
func AdminSigningMessage(action string, nonce uint64, args ...[]byte) []byte {
	msg := []byte(adminSigningTag)
	msg = appendUint64(msg, uint64(len(action)))
	msg = append(msg, action...)
	msg = appendUint64(msg, nonce)
	for _, a := range args {
		msg = appendUint64(msg, uint64(len(a)))
		msg = append(msg, a...)
	}
	return msg
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
