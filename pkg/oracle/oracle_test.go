package oracle

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

func newTestOracle(t *testing.T) (*Local, fhe.Scheme) {
	t.Helper()
	scheme := fhe.NewPlain()
	signer := crypto.NewBLSSignerFromSeed(bytes.Repeat([]byte{7}, 32))
	return NewLocal(scheme, signer, nil), scheme
}

func encrypt(t *testing.T, scheme fhe.Scheme, v uint64) []byte {
	t.Helper()
	ct, err := scheme.EncryptUint64(v)
	if err != nil {
		t.Fatalf("encrypt %d: %v", v, err)
	}
	b, err := ct.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return b
}

func TestSubmitRespondVerify(t *testing.T) {
	o, scheme := newTestOracle(t)

	id, err := o.Submit([][]byte{encrypt(t, scheme, 107), encrypt(t, scheme, 40)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cleartext, proof, err := o.Respond(id)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(cleartext) != 16 {
		t.Fatalf("cleartext is %d bytes, want 16", len(cleartext))
	}
	if got := binary.BigEndian.Uint64(cleartext[:8]); got != 107 {
		t.Fatalf("first field = %d, want 107", got)
	}
	if got := binary.BigEndian.Uint64(cleartext[8:]); got != 40 {
		t.Fatalf("second field = %d, want 40", got)
	}
	if err := o.Verify(id, cleartext, proof); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// responding twice has nothing pending
	if _, _, err := o.Respond(id); err == nil {
		t.Fatal("second Respond succeeded, want error")
	}
}

func TestSubmitRejectsEmpty(t *testing.T) {
	o, _ := newTestOracle(t)
	if _, err := o.Submit(nil); err == nil {
		t.Fatal("empty submission accepted")
	}
}

func TestRequestIDsDifferPerSubmission(t *testing.T) {
	o, scheme := newTestOracle(t)
	ct := encrypt(t, scheme, 5)

	a, err := o.Submit([][]byte{ct})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b, err := o.Submit([][]byte{ct})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a == b {
		t.Fatal("identical ciphertexts produced the same request id")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	o, scheme := newTestOracle(t)
	id, err := o.Submit([][]byte{encrypt(t, scheme, 107), encrypt(t, scheme, 40)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cleartext, proof, err := o.Respond(id)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	tampered := append([]byte(nil), cleartext...)
	binary.BigEndian.PutUint64(tampered[:8], 9999)
	if err := o.Verify(id, tampered, proof); err == nil {
		t.Fatal("tampered cleartext verified")
	}

	badProof := append([]byte(nil), proof...)
	badProof[0] ^= 0x01
	if err := o.Verify(id, cleartext, badProof); err == nil {
		t.Fatal("tampered proof verified")
	}

	var otherID engine.RequestID
	copy(otherID[:], id[:])
	otherID[0] ^= 0x01
	if err := o.Verify(otherID, cleartext, proof); err == nil {
		t.Fatal("proof verified against a different request id")
	}
}

func TestServeDeliversQueuedResults(t *testing.T) {
	o, scheme := newTestOracle(t)
	id, err := o.Submit([][]byte{encrypt(t, scheme, 107), encrypt(t, scheme, 40)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	type result struct {
		id        engine.RequestID
		cleartext []byte
		proof     []byte
	}
	results := make(chan result, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Serve(ctx, func(id engine.RequestID, cleartext, proof []byte) {
		results <- result{id, cleartext, proof}
	})

	select {
	case r := <-results:
		if r.id != id {
			t.Fatalf("served request %x, want %x", r.id[:4], id[:4])
		}
		if err := o.Verify(r.id, r.cleartext, r.proof); err != nil {
			t.Fatalf("served proof invalid: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result served")
	}
}
