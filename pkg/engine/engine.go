// Package engine implements the confidential order-batching core: parties
// with the provider role submit encrypted orders into an open batch, the
// owner requests aggregation, and the external decryption authority reveals
// only the ask/bid volume totals, never individual orders.
//
// The engine executes under a serialized-transaction model; the mutex only
// guards against concurrent API goroutines, not for internal scheduling.
// The single asynchronous boundary is the oracle: a request record is the
// only state carried across the gap, and the callback re-validates the
// aggregate via the stored state hash rather than holding a lock.
package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/util"
)

// DefaultCooldown rate-limits per-address submissions and aggregation
// requests until the owner tunes it.
const DefaultCooldown = 30 * time.Second

// cleartext layout: ask volume then bid volume, 8-byte big-endian each
const cleartextLen = 16

type Config struct {
	// Owner is the initial owner address.
	Owner common.Address

	// Self is the engine's identity, mixed into every state hash so a
	// decryption result cannot be replayed across engine instances.
	Self common.Address

	// Eval is the homomorphic backend.
	Eval fhe.Evaluator

	// Oracle is the external decryption authority.
	Oracle Oracle

	// Store is optional persistence; nil disables it.
	Store Store

	// Clock defaults to the real clock.
	Clock util.Clock

	// Cooldown defaults to DefaultCooldown.
	Cooldown time.Duration

	Logger *zap.SugaredLogger
}

// Engine owns all mutable state: roles, the batch window, the order
// ledger, and outstanding decryption contexts.
type Engine struct {
	mu sync.Mutex

	log    *zap.SugaredLogger
	eval   fhe.Evaluator
	oracle Oracle
	store  Store
	clock  util.Clock
	self   common.Address

	owner     common.Address
	providers map[common.Address]bool
	paused    bool
	cooldown  time.Duration

	lastSubmit  map[common.Address]time.Time
	lastRequest map[common.Address]time.Time

	height   uint64
	batch    Batch
	orders   []*Order
	contexts map[RequestID]*DecryptionContext

	// OnEvent receives every notification event. Set once at wiring time,
	// before the engine serves requests.
	OnEvent func(Event)
}

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		log:         cfg.Logger,
		eval:        cfg.Eval,
		oracle:      cfg.Oracle,
		store:       cfg.Store,
		clock:       cfg.Clock,
		self:        cfg.Self,
		owner:       cfg.Owner,
		providers:   make(map[common.Address]bool),
		cooldown:    cfg.Cooldown,
		lastSubmit:  make(map[common.Address]time.Time),
		lastRequest: make(map[common.Address]time.Time),
		contexts:    make(map[RequestID]*DecryptionContext),
	}
}

// ==============================
// Access control
// ==============================

func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrNotOwner
	}
	prev := e.owner
	e.owner = newOwner
	e.persistAccess()
	e.emit(OwnershipTransferred{Previous: prev, New: newOwner})
	return nil
}

func (e *Engine) AddProvider(caller, addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrNotOwner
	}
	if e.providers[addr] {
		return fmt.Errorf("%w: %s", ErrProviderExists, addr.Hex())
	}
	e.providers[addr] = true
	e.persistAccess()
	e.emit(ProviderAdded{Addr: addr})
	return nil
}

func (e *Engine) RemoveProvider(caller, addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrNotOwner
	}
	if !e.providers[addr] {
		return fmt.Errorf("%w: %s", ErrProviderMissing, addr.Hex())
	}
	delete(e.providers, addr)
	e.persistAccess()
	e.emit(ProviderRemoved{Addr: addr})
	return nil
}

func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrNotOwner
	}
	if e.paused == paused {
		return ErrPauseUnchanged
	}
	e.paused = paused
	e.persistAccess()
	e.emit(PausedSet{Paused: paused})
	return nil
}

func (e *Engine) SetCooldown(caller common.Address, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrNotOwner
	}
	e.cooldown = d
	e.persistAccess()
	e.emit(CooldownSet{Cooldown: d})
	return nil
}

// ==============================
// Batch lifecycle
// ==============================

func (e *Engine) OpenBatch(caller common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return 0, ErrNotOwner
	}
	if e.paused {
		return 0, ErrPaused
	}
	if e.batch.Open {
		return 0, ErrBatchOpen
	}
	e.batch = Batch{ID: e.batch.ID + 1, Open: true}
	e.persistBatch()
	e.emit(BatchOpened{ID: e.batch.ID})
	return e.batch.ID, nil
}

func (e *Engine) CloseBatch(caller common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return 0, ErrNotOwner
	}
	if e.paused {
		return 0, ErrPaused
	}
	if !e.batch.Open {
		return 0, ErrBatchNotOpen
	}
	e.batch.Open = false
	e.persistBatch()
	e.emit(BatchClosed{ID: e.batch.ID})
	return e.batch.ID, nil
}

// ==============================
// Order submission
// ==============================

// OrderParams carries the opaque fields of a new order. Expiry may be nil
// (never expires).
type OrderParams struct {
	AssetID fhe.Ciphertext
	Amount  fhe.Ciphertext
	Price   fhe.Ciphertext
	Expiry  fhe.Ciphertext
	IsAsk   bool
}

func (e *Engine) SubmitOrder(caller common.Address, p OrderParams) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.providers[caller] {
		return 0, ErrNotProvider
	}
	if e.paused {
		return 0, ErrPaused
	}
	if err := e.checkCooldown(e.lastSubmit, caller); err != nil {
		return 0, err
	}
	if !e.batch.Open {
		return 0, ErrBatchNotOpen
	}

	o := &Order{
		ID:        uint64(len(e.orders)),
		Submitter: caller,
		AssetID:   p.AssetID,
		Amount:    p.Amount,
		Price:     p.Price,
		Expiry:    p.Expiry,
		IsAsk:     p.IsAsk,
	}
	e.orders = append(e.orders, o)
	e.lastSubmit[caller] = e.clock.Now()

	if e.store != nil {
		if err := e.store.SaveOrder(o); err != nil {
			e.log.Warnw("order_persist_failed", "id", o.ID, "err", err)
		}
	}
	e.emit(OrderSubmitted{Submitter: caller, OrderID: o.ID, BatchID: e.batch.ID, IsAsk: o.IsAsk})
	return o.ID, nil
}

// ==============================
// Aggregation
// ==============================

// Aggregate sums the amounts of all non-expired orders in the ledger into
// homomorphic ask and bid totals. An order is skipped when its expiry is
// initialized and <= the current block height; orders without an expiry
// always contribute. Fails with ErrEmptyAggregate unless both totals
// received at least one contribution: an uninitialized total is not a
// serializable zero ciphertext.
func (e *Engine) Aggregate() (ask, bid fhe.Ciphertext, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregateLocked()
}

func (e *Engine) aggregateLocked() (ask, bid fhe.Ciphertext, err error) {
	for _, o := range e.orders {
		if o.Expiry != nil && o.Expiry.Initialized() {
			expired, err := e.eval.Le(o.Expiry, e.height)
			if err != nil {
				return nil, nil, fmt.Errorf("expiry compare (order %d): %w", o.ID, err)
			}
			if expired {
				continue
			}
		}
		total := &bid
		if o.IsAsk {
			total = &ask
		}
		if *total == nil {
			z, err := e.eval.Zero()
			if err != nil {
				return nil, nil, fmt.Errorf("init total: %w", err)
			}
			*total = z
		}
		sum, err := e.eval.Add(*total, o.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("accumulate (order %d): %w", o.ID, err)
		}
		*total = sum
	}
	if ask == nil || bid == nil {
		return nil, nil, ErrEmptyAggregate
	}
	return ask, bid, nil
}

// aggregateBytesLocked serializes the current aggregate and binds it to the
// engine identity. Request and callback both route through here, so the
// stored hash covers the exact ciphertext pair that existed at request time.
func (e *Engine) aggregateBytesLocked() (askB, bidB []byte, hash [32]byte, err error) {
	ask, bid, err := e.aggregateLocked()
	if err != nil {
		return nil, nil, hash, err
	}
	if askB, err = ask.Bytes(); err != nil {
		return nil, nil, hash, fmt.Errorf("serialize ask total: %w", err)
	}
	if bidB, err = bid.Bytes(); err != nil {
		return nil, nil, hash, fmt.Errorf("serialize bid total: %w", err)
	}
	h := sha256.New()
	h.Write(askB)
	h.Write(bidB)
	h.Write(e.self[:])
	copy(hash[:], h.Sum(nil))
	return askB, bidB, hash, nil
}

// ==============================
// Decryption oracle protocol
// ==============================

// RequestAggregateDecryption aggregates the ledger, submits the serialized
// totals to the oracle, and records a context binding the request to the
// aggregate state hash. The batch only needs to match the current id; it
// does not need to be closed.
func (e *Engine) RequestAggregateDecryption(caller common.Address, batchID uint64) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero RequestID
	if caller != e.owner {
		return zero, ErrNotOwner
	}
	if e.paused {
		return zero, ErrPaused
	}
	if err := e.checkCooldown(e.lastRequest, caller); err != nil {
		return zero, err
	}
	if batchID != e.batch.ID {
		return zero, fmt.Errorf("%w: got %d, current %d", ErrInvalidBatchID, batchID, e.batch.ID)
	}

	askB, bidB, hash, err := e.aggregateBytesLocked()
	if err != nil {
		return zero, err
	}
	id, err := e.oracle.Submit([][]byte{askB, bidB})
	if err != nil {
		return zero, fmt.Errorf("oracle submit: %w", err)
	}

	ctx := &DecryptionContext{BatchID: batchID, StateHash: hash, Processed: false}
	e.contexts[id] = ctx
	e.lastRequest[caller] = e.clock.Now()

	if e.store != nil {
		if err := e.store.SaveContext(id, ctx); err != nil {
			e.log.Warnw("context_persist_failed", "request", fmt.Sprintf("%x", id[:8]), "err", err)
		}
	}
	e.emit(DecryptionRequested{RequestID: id, BatchID: batchID})
	return id, nil
}

// HandleDecryptionResult is the asynchronous oracle callback. It rejects
// replays, re-derives the aggregate hash to detect state drift across the
// async gap, verifies the proof, and only then marks the context processed
// and reveals the totals.
func (e *Engine) HandleDecryptionResult(id RequestID, cleartext, proof []byte) (askVol, bidVol uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, ok := e.contexts[id]
	if !ok {
		return 0, 0, ErrUnknownRequest
	}
	if ctx.Processed {
		return 0, 0, ErrReplayAttempt
	}

	_, _, hash, err := e.aggregateBytesLocked()
	if err != nil {
		return 0, 0, fmt.Errorf("recompute aggregate: %w", err)
	}
	if hash != ctx.StateHash {
		return 0, 0, ErrStateMismatch
	}

	if err := e.oracle.Verify(id, cleartext, proof); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if len(cleartext) != cleartextLen {
		return 0, 0, fmt.Errorf("%w: cleartext is %d bytes, want %d", ErrInvalidProof, len(cleartext), cleartextLen)
	}
	askVol = binary.BigEndian.Uint64(cleartext[:8])
	bidVol = binary.BigEndian.Uint64(cleartext[8:])

	ctx.Processed = true
	if e.store != nil {
		if err := e.store.SaveContext(id, ctx); err != nil {
			e.log.Warnw("context_persist_failed", "request", fmt.Sprintf("%x", id[:8]), "err", err)
		}
	}
	e.emit(DecryptionCompleted{RequestID: id, BatchID: ctx.BatchID, AskVolume: askVol, BidVolume: bidVol})
	return askVol, bidVol, nil
}

// ==============================
// Block height
// ==============================

// SetHeight is invoked by the sequencing layer as blocks advance. Expiry
// filtering is evaluated against this height.
func (e *Engine) SetHeight(h uint64) {
	e.mu.Lock()
	e.height = h
	e.mu.Unlock()
}

func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

// ==============================
// Read surface
// ==============================

func (e *Engine) Owner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

func (e *Engine) IsProvider(addr common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.providers[addr]
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) Cooldown() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldown
}

func (e *Engine) CurrentBatch() Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batch
}

func (e *Engine) Order(id uint64) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id >= uint64(len(e.orders)) {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return e.orders[id], nil
}

func (e *Engine) OrderCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.orders))
}

func (e *Engine) Context(id RequestID) (DecryptionContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.contexts[id]
	if !ok {
		return DecryptionContext{}, false
	}
	return *ctx, true
}

func (e *Engine) AccessState() AccessState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accessStateLocked()
}

// ==============================
// Restore
// ==============================

// Restore loads a persisted snapshot. Called once at startup, before the
// engine serves requests.
func (e *Engine) Restore(access AccessState, batch Batch, orders []*Order, contexts map[RequestID]*DecryptionContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = access.Owner
	e.paused = access.Paused
	if access.Cooldown > 0 {
		e.cooldown = access.Cooldown
	}
	e.providers = make(map[common.Address]bool, len(access.Providers))
	for _, p := range access.Providers {
		e.providers[p] = true
	}
	e.batch = batch
	e.orders = orders
	if contexts != nil {
		e.contexts = contexts
	}
}

// ==============================
// internal
// ==============================

func (e *Engine) checkCooldown(last map[common.Address]time.Time, caller common.Address) error {
	t, ok := last[caller]
	if !ok {
		return nil
	}
	if wait := t.Add(e.cooldown).Sub(e.clock.Now()); wait > 0 {
		return fmt.Errorf("%w: %s remaining", ErrCooldownActive, wait)
	}
	return nil
}

func (e *Engine) accessStateLocked() AccessState {
	providers := make([]common.Address, 0, len(e.providers))
	for p := range e.providers {
		providers = append(providers, p)
	}
	return AccessState{Owner: e.owner, Paused: e.paused, Cooldown: e.cooldown, Providers: providers}
}

func (e *Engine) persistAccess() {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAccess(e.accessStateLocked()); err != nil {
		e.log.Warnw("access_persist_failed", "err", err)
	}
}

func (e *Engine) persistBatch() {
	if e.store == nil {
		return
	}
	if err := e.store.SaveBatch(e.batch); err != nil {
		e.log.Warnw("batch_persist_failed", "err", err)
	}
}

func (e *Engine) emit(ev Event) {
	e.log.Debugw("event", "name", ev.Name())
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}
