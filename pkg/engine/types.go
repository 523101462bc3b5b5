package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

// RequestID identifies a decryption request issued by the oracle.
type RequestID [32]byte

// Order is an append-only ledger entry. The side flag is plaintext; asset,
// amount, price, and expiry are opaque. Orders are never deleted; expired
// orders are skipped at aggregation time.
type Order struct {
	ID        uint64
	Submitter common.Address
	AssetID   fhe.Ciphertext
	Amount    fhe.Ciphertext
	Price     fhe.Ciphertext
	Expiry    fhe.Ciphertext // uninitialized means never expires
	IsAsk     bool
}

// Batch is the single batching window. ID increments on every open.
type Batch struct {
	ID   uint64 `json:"id"`
	Open bool   `json:"open"`
}

// DecryptionContext binds an outstanding oracle request to the aggregate
// state that produced it. Processed transitions false→true exactly once.
type DecryptionContext struct {
	BatchID   uint64   `json:"batchId"`
	StateHash [32]byte `json:"stateHash"`
	Processed bool     `json:"processed"`
}

// Oracle is the external decryption authority, at its interface boundary.
type Oracle interface {
	// Submit hands the serialized aggregate ciphertexts to the authority
	// and returns the request identifier. Non-blocking; the result
	// arrives later through HandleDecryptionResult.
	Submit(ciphertexts [][]byte) (RequestID, error)

	// Verify checks the authority's proof over (requestID, cleartext).
	Verify(id RequestID, cleartext, proof []byte) error
}

// Store is the optional persistence hook. Writes happen after the mutation
// succeeds; a nil Store disables persistence.
type Store interface {
	SaveOrder(o *Order) error
	SaveContext(id RequestID, c *DecryptionContext) error
	SaveBatch(b Batch) error
	SaveAccess(a AccessState) error
}

// AccessState is the persisted snapshot of roles and rate-limit settings.
type AccessState struct {
	Owner     common.Address   `json:"owner"`
	Paused    bool             `json:"paused"`
	Cooldown  time.Duration    `json:"cooldown"`
	Providers []common.Address `json:"providers"`
}
