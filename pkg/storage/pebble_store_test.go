package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOrderRoundtrip(t *testing.T) {
	s := newTestStore(t)
	scheme := fhe.NewPlain()
	enc := func(v uint64) fhe.Ciphertext {
		ct, err := scheme.EncryptUint64(v)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		return ct
	}
	submitter := common.HexToAddress("0x2000000000000000000000000000000000000002")

	in := []*engine.Order{
		{ID: 0, Submitter: submitter, AssetID: enc(1), Amount: enc(100), Price: enc(50), Expiry: enc(90), IsAsk: true},
		{ID: 1, Submitter: submitter, AssetID: enc(1), Amount: enc(40), Price: enc(49), IsAsk: false},
	}
	for _, o := range in {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder(%d): %v", o.ID, err)
		}
	}

	out, err := s.LoadOrders(scheme)
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d orders, want 2", len(out))
	}
	for i, o := range out {
		if o.ID != uint64(i) || o.Submitter != submitter {
			t.Fatalf("order %d = %+v", i, o)
		}
	}
	if v, _ := scheme.DecryptUint64(out[0].Amount); v != 100 {
		t.Fatalf("order 0 amount = %d, want 100", v)
	}
	if !out[0].IsAsk || out[1].IsAsk {
		t.Fatal("order sides not preserved")
	}
	if out[1].Expiry != nil {
		t.Fatal("absent expiry came back non-nil")
	}
	if v, _ := scheme.DecryptUint64(out[0].Expiry); v != 90 {
		t.Fatalf("order 0 expiry = %d, want 90", v)
	}
}

func TestOrdersLoadInIDOrder(t *testing.T) {
	s := newTestStore(t)
	scheme := fhe.NewPlain()
	ct, _ := scheme.EncryptUint64(1)

	// write out of order; big-endian keys sort them back
	for _, id := range []uint64{300, 2, 117, 0} {
		o := &engine.Order{ID: id, AssetID: ct, Amount: ct, Price: ct}
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder(%d): %v", id, err)
		}
	}
	out, err := s.LoadOrders(scheme)
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	want := []uint64{0, 2, 117, 300}
	for i, o := range out {
		if o.ID != want[i] {
			t.Fatalf("position %d holds order %d, want %d", i, o.ID, want[i])
		}
	}
}

func TestContextRoundtrip(t *testing.T) {
	s := newTestStore(t)

	var id engine.RequestID
	id[0], id[31] = 0xab, 0xcd
	in := &engine.DecryptionContext{BatchID: 3, Processed: true}
	in.StateHash[0] = 0x42
	if err := s.SaveContext(id, in); err != nil {
		t.Fatalf("SaveContext: %v", err)
	}

	out, err := s.LoadContexts()
	if err != nil {
		t.Fatalf("LoadContexts: %v", err)
	}
	got, ok := out[id]
	if !ok {
		t.Fatalf("context %x not loaded", id[:4])
	}
	if got.BatchID != 3 || !got.Processed || got.StateHash != in.StateHash {
		t.Fatalf("context = %+v, want %+v", got, in)
	}
}

func TestBatchAndAccessRoundtrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.LoadBatch(); err != nil || ok {
		t.Fatalf("empty LoadBatch = ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.LoadAccess(); err != nil || ok {
		t.Fatalf("empty LoadAccess = ok=%v err=%v", ok, err)
	}

	if err := s.SaveBatch(engine.Batch{ID: 7, Open: true}); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	b, ok, err := s.LoadBatch()
	if err != nil || !ok {
		t.Fatalf("LoadBatch = ok=%v err=%v", ok, err)
	}
	if b.ID != 7 || !b.Open {
		t.Fatalf("batch = %+v", b)
	}

	access := engine.AccessState{
		Owner:     common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Paused:    true,
		Cooldown:  45 * time.Second,
		Providers: []common.Address{common.HexToAddress("0x2000000000000000000000000000000000000002")},
	}
	if err := s.SaveAccess(access); err != nil {
		t.Fatalf("SaveAccess: %v", err)
	}
	a, ok, err := s.LoadAccess()
	if err != nil || !ok {
		t.Fatalf("LoadAccess = ok=%v err=%v", ok, err)
	}
	if a.Owner != access.Owner || !a.Paused || a.Cooldown != access.Cooldown || len(a.Providers) != 1 {
		t.Fatalf("access = %+v", a)
	}
}
