// Package storage persists engine state in Pebble so a restarted node
// recovers the ledger, the batch window, outstanding decryption contexts,
// and access-control state.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

// Key schema:
//   ord:<8-byte id>     → order (JSON, ciphertexts hex)
//   ctx:<32-byte id>    → decryption context (JSON)
//   meta:batch          → batch state (JSON)
//   meta:access         → access/role state (JSON)
const (
	prefixOrder   = "ord:"
	prefixContext = "ctx:"
	keyBatch      = "meta:batch"
	keyAccess     = "meta:access"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func orderKey(id uint64) []byte {
	k := make([]byte, len(prefixOrder)+8)
	copy(k, prefixOrder)
	binary.BigEndian.PutUint64(k[len(prefixOrder):], id)
	return k
}

func contextKey(id engine.RequestID) []byte {
	return append([]byte(prefixContext), id[:]...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// orderRecord is the on-disk form of an order; ciphertexts are carried as
// hex so records stay inspectable with pebble tooling.
type orderRecord struct {
	ID        uint64         `json:"id"`
	Submitter common.Address `json:"submitter"`
	AssetID   hexutil.Bytes  `json:"assetId"`
	Amount    hexutil.Bytes  `json:"amount"`
	Price     hexutil.Bytes  `json:"price"`
	Expiry    hexutil.Bytes  `json:"expiry,omitempty"`
	IsAsk     bool           `json:"isAsk"`
}

func cipherBytes(ct fhe.Ciphertext) ([]byte, error) {
	if ct == nil || !ct.Initialized() {
		return nil, nil
	}
	return ct.Bytes()
}

func (s *PebbleStore) SaveOrder(o *engine.Order) error {
	rec := orderRecord{ID: o.ID, Submitter: o.Submitter, IsAsk: o.IsAsk}
	var err error
	if rec.AssetID, err = cipherBytes(o.AssetID); err != nil {
		return fmt.Errorf("serialize asset id: %w", err)
	}
	if rec.Amount, err = cipherBytes(o.Amount); err != nil {
		return fmt.Errorf("serialize amount: %w", err)
	}
	if rec.Price, err = cipherBytes(o.Price); err != nil {
		return fmt.Errorf("serialize price: %w", err)
	}
	if rec.Expiry, err = cipherBytes(o.Expiry); err != nil {
		return fmt.Errorf("serialize expiry: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (s *PebbleStore) SaveContext(id engine.RequestID, c *engine.DecryptionContext) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := s.db.Set(contextKey(id), data, pebble.Sync); err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (s *PebbleStore) SaveBatch(b engine.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := s.db.Set([]byte(keyBatch), data, pebble.Sync); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) SaveAccess(a engine.AccessState) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal access state: %w", err)
	}
	if err := s.db.Set([]byte(keyAccess), data, pebble.Sync); err != nil {
		return fmt.Errorf("save access state: %w", err)
	}
	return nil
}

// LoadBatch returns the persisted batch state, if any.
func (s *PebbleStore) LoadBatch() (engine.Batch, bool, error) {
	val, closer, err := s.db.Get([]byte(keyBatch))
	if err == pebble.ErrNotFound {
		return engine.Batch{}, false, nil
	}
	if err != nil {
		return engine.Batch{}, false, fmt.Errorf("get batch: %w", err)
	}
	defer closer.Close()
	var b engine.Batch
	if err := json.Unmarshal(val, &b); err != nil {
		return engine.Batch{}, false, fmt.Errorf("unmarshal batch: %w", err)
	}
	return b, true, nil
}

// LoadAccess returns the persisted access state, if any.
func (s *PebbleStore) LoadAccess() (engine.AccessState, bool, error) {
	val, closer, err := s.db.Get([]byte(keyAccess))
	if err == pebble.ErrNotFound {
		return engine.AccessState{}, false, nil
	}
	if err != nil {
		return engine.AccessState{}, false, fmt.Errorf("get access state: %w", err)
	}
	defer closer.Close()
	var a engine.AccessState
	if err := json.Unmarshal(val, &a); err != nil {
		return engine.AccessState{}, false, fmt.Errorf("unmarshal access state: %w", err)
	}
	return a, true, nil
}

// LoadOrders rebuilds the ledger in id order, parsing ciphertexts through
// the scheme.
func (s *PebbleStore) LoadOrders(eval fhe.Evaluator) ([]*engine.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*engine.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var rec orderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		o := &engine.Order{ID: rec.ID, Submitter: rec.Submitter, IsAsk: rec.IsAsk}
		if o.AssetID, err = eval.Deserialize(rec.AssetID); err != nil {
			return nil, fmt.Errorf("order %d asset id: %w", rec.ID, err)
		}
		if o.Amount, err = eval.Deserialize(rec.Amount); err != nil {
			return nil, fmt.Errorf("order %d amount: %w", rec.ID, err)
		}
		if o.Price, err = eval.Deserialize(rec.Price); err != nil {
			return nil, fmt.Errorf("order %d price: %w", rec.ID, err)
		}
		if o.Expiry, err = eval.Deserialize(rec.Expiry); err != nil {
			return nil, fmt.Errorf("order %d expiry: %w", rec.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// LoadContexts rebuilds the decryption-context map.
func (s *PebbleStore) LoadContexts() (map[engine.RequestID]*engine.DecryptionContext, error) {
	prefix := []byte(prefixContext)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	contexts := make(map[engine.RequestID]*engine.DecryptionContext)
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(prefixContext)+32 {
			continue
		}
		var id engine.RequestID
		copy(id[:], key[len(prefixContext):])
		var c engine.DecryptionContext
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("unmarshal context %x: %w", id[:8], err)
		}
		contexts[id] = &c
	}
	return contexts, nil
}

var _ engine.Store = (*PebbleStore)(nil)
