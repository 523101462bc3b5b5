// file: tests/e2e_test.go
package tests

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/oracle"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/storage"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/util"
)

var (
	ownerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	providerAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func submitOrder(t *testing.T, eng *engine.Engine, scheme fhe.Scheme, clock *util.ManualClock, amount uint64, isAsk bool) {
	t.Helper()
	enc := func(v uint64) fhe.Ciphertext {
		ct, err := scheme.EncryptUint64(v)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		return ct
	}
	clock.Advance(time.Minute)
	_, err := eng.SubmitOrder(providerAddr, engine.OrderParams{
		AssetID: enc(1),
		Amount:  enc(amount),
		Price:   enc(50),
		IsAsk:   isAsk,
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
}

// TestFullDecryptionFlow runs the whole protocol against the real oracle:
// open a batch, submit both sides, request decryption, let the oracle
// respond asynchronously, and confirm the revealed totals plus replay
// rejection.
func TestFullDecryptionFlow(t *testing.T) {
	scheme := fhe.NewPlain()
	signer := crypto.NewBLSSignerFromSeed(bytes.Repeat([]byte{9}, 32))
	authority := oracle.NewLocal(scheme, signer, nil)
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))

	eng := engine.New(engine.Config{
		Owner:    ownerAddr,
		Self:     ownerAddr,
		Eval:     scheme,
		Oracle:   authority,
		Clock:    clock,
		Cooldown: time.Second,
	})

	type completion struct {
		ask, bid uint64
		batchID  uint64
	}
	completed := make(chan completion, 1)
	eng.OnEvent = func(ev engine.Event) {
		if done, ok := ev.(engine.DecryptionCompleted); ok {
			completed <- completion{ask: done.AskVolume, bid: done.BidVolume, batchID: done.BatchID}
		}
	}

	batchID, err := eng.OpenBatch(ownerAddr)
	if err != nil {
		t.Fatalf("OpenBatch: %v", err)
	}
	if batchID != 1 {
		t.Fatalf("batch id = %d, want 1", batchID)
	}
	if err := eng.AddProvider(ownerAddr, providerAddr); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	submitOrder(t, eng, scheme, clock, 100, true)
	submitOrder(t, eng, scheme, clock, 40, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var lastCleartext, lastProof []byte
	var lastID engine.RequestID
	delivered := make(chan struct{}, 1)
	go authority.Serve(ctx, func(id engine.RequestID, cleartext, proof []byte) {
		if _, _, err := eng.HandleDecryptionResult(id, cleartext, proof); err != nil {
			t.Errorf("HandleDecryptionResult: %v", err)
		}
		lastID, lastCleartext, lastProof = id, cleartext, proof
		delivered <- struct{}{}
	})

	reqID, err := eng.RequestAggregateDecryption(ownerAddr, batchID)
	if err != nil {
		t.Fatalf("RequestAggregateDecryption: %v", err)
	}

	select {
	case done := <-completed:
		if done.ask != 100 || done.bid != 40 {
			t.Fatalf("revealed (%d, %d), want (100, 40)", done.ask, done.bid)
		}
		if done.batchID != batchID {
			t.Fatalf("completed batch = %d, want %d", done.batchID, batchID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("decryption never completed")
	}
	<-delivered

	dctx, ok := eng.Context(reqID)
	if !ok || !dctx.Processed {
		t.Fatalf("context = %+v ok=%v, want processed", dctx, ok)
	}

	// replaying the same signed result must be rejected
	if _, _, err := eng.HandleDecryptionResult(lastID, lastCleartext, lastProof); !errors.Is(err, engine.ErrReplayAttempt) {
		t.Fatalf("replay err = %v, want ErrReplayAttempt", err)
	}
}

// TestRestartRecoversState persists through Pebble, rebuilds a fresh
// engine from disk, and checks that roles, the batch window, the ledger,
// and the processed decryption context all survive.
func TestRestartRecoversState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "engine.db")
	scheme := fhe.NewPlain()
	signer := crypto.NewBLSSignerFromSeed(bytes.Repeat([]byte{9}, 32))
	authority := oracle.NewLocal(scheme, signer, nil)
	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))

	store, err := storage.NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}

	eng := engine.New(engine.Config{
		Owner:    ownerAddr,
		Self:     ownerAddr,
		Eval:     scheme,
		Oracle:   authority,
		Store:    store,
		Clock:    clock,
		Cooldown: time.Second,
	})

	if _, err := eng.OpenBatch(ownerAddr); err != nil {
		t.Fatalf("OpenBatch: %v", err)
	}
	if err := eng.AddProvider(ownerAddr, providerAddr); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	submitOrder(t, eng, scheme, clock, 100, true)
	submitOrder(t, eng, scheme, clock, 40, false)

	reqID, err := eng.RequestAggregateDecryption(ownerAddr, 1)
	if err != nil {
		t.Fatalf("RequestAggregateDecryption: %v", err)
	}
	cleartext, proof, err := authority.Respond(reqID)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, _, err := eng.HandleDecryptionResult(reqID, cleartext, proof); err != nil {
		t.Fatalf("HandleDecryptionResult: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// restart
	store, err = storage.NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	access, ok, err := store.LoadAccess()
	if err != nil || !ok {
		t.Fatalf("LoadAccess = ok=%v err=%v", ok, err)
	}
	batch, ok, err := store.LoadBatch()
	if err != nil || !ok {
		t.Fatalf("LoadBatch = ok=%v err=%v", ok, err)
	}
	orders, err := store.LoadOrders(scheme)
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	contexts, err := store.LoadContexts()
	if err != nil {
		t.Fatalf("LoadContexts: %v", err)
	}

	restored := engine.New(engine.Config{
		Owner:  ownerAddr,
		Self:   ownerAddr,
		Eval:   scheme,
		Oracle: authority,
		Store:  store,
		Clock:  clock,
	})
	restored.Restore(access, batch, orders, contexts)

	if restored.Owner() != ownerAddr || !restored.IsProvider(providerAddr) {
		t.Fatal("access state not restored")
	}
	if b := restored.CurrentBatch(); b.ID != 1 || !b.Open {
		t.Fatalf("batch = %+v, want open batch 1", b)
	}
	if n := restored.OrderCount(); n != 2 {
		t.Fatalf("OrderCount = %d, want 2", n)
	}

	// the ledger still aggregates to the same totals
	ask, bid, err := restored.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate after restart: %v", err)
	}
	askV, _ := scheme.DecryptUint64(ask)
	bidV, _ := scheme.DecryptUint64(bid)
	if askV != 100 || bidV != 40 {
		t.Fatalf("aggregate = (%d, %d), want (100, 40)", askV, bidV)
	}

	// the processed context came back; replays stay rejected across restarts
	dctx, ok := restored.Context(reqID)
	if !ok || !dctx.Processed {
		t.Fatalf("context = %+v ok=%v, want processed", dctx, ok)
	}
	if _, _, err := restored.HandleDecryptionResult(reqID, cleartext, proof); !errors.Is(err, engine.ErrReplayAttempt) {
		t.Fatalf("replay after restart err = %v, want ErrReplayAttempt", err)
	}
}
