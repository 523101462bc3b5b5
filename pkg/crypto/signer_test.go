package crypto

import (
	"bytes"
	"testing"
)

func TestSignAndRecoverMessage(t *testing.T) {
	s, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := []byte("confidential batch request")

	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	addr, err := RecoverMessageAddress(msg, sig)
	if err != nil {
		t.Fatalf("RecoverMessageAddress: %v", err)
	}
	if addr != s.Address() {
		t.Fatalf("recovered %s, want %s", addr.Hex(), s.Address().Hex())
	}

	// a different message recovers a different address
	addr, err = RecoverMessageAddress([]byte("other message"), sig)
	if err == nil && addr == s.Address() {
		t.Fatal("signature verified against the wrong message")
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	const key = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	a, err := FromPrivateKeyHex(key)
	if err != nil {
		t.Fatalf("FromPrivateKeyHex: %v", err)
	}
	b, err := FromPrivateKeyHex("0x" + key)
	if err != nil {
		t.Fatalf("FromPrivateKeyHex with 0x: %v", err)
	}
	if a.Address() != b.Address() {
		t.Fatal("0x prefix changed the derived address")
	}

	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Fatal("invalid hex accepted")
	}
}

func TestBLSSignVerify(t *testing.T) {
	signer := NewBLSSignerFromSeed(bytes.Repeat([]byte{1}, 32))
	msg := []byte("decryption result")

	sig := signer.Sign(msg)
	if !BLSVerify(signer.Pubkey(), sig, msg) {
		t.Fatal("valid signature rejected")
	}
	if BLSVerify(signer.Pubkey(), sig, []byte("tampered")) {
		t.Fatal("signature verified against the wrong message")
	}

	other := NewBLSSignerFromSeed(bytes.Repeat([]byte{2}, 32))
	if BLSVerify(other.Pubkey(), sig, msg) {
		t.Fatal("signature verified under the wrong key")
	}
}

func TestBLSAggregate(t *testing.T) {
	msg := []byte("shared message")
	s1 := NewBLSSignerFromSeed(bytes.Repeat([]byte{3}, 32))
	s2 := NewBLSSignerFromSeed(bytes.Repeat([]byte{4}, 32))

	agg := BLSAggregate([][]byte{s1.Sign(msg), s2.Sign(msg)})
	if agg == nil {
		t.Fatal("aggregation failed")
	}
	if !BLSVerifyAggregate([]*BLSPubKey{s1.Pubkey(), s2.Pubkey()}, msg, agg) {
		t.Fatal("valid aggregate rejected")
	}
	if BLSVerifyAggregate([]*BLSPubKey{s1.Pubkey()}, msg, agg) {
		t.Fatal("aggregate verified with missing key")
	}
}
