package fhe

import (
	"encoding/binary"
	"fmt"
)

// Plain is the devnet scheme: the "ciphertext" is the cleartext padded to a
// fixed 32-byte field. It implements the full Scheme contract so the engine,
// oracle, and tests run unchanged without key material, the same way the
// node runs consensus with a dummy signer in devnet.
type Plain struct{}

type plainCipher struct {
	v uint64
}

const plainWidth = 32

func NewPlain() *Plain { return &Plain{} }

func (*Plain) Width() int { return plainWidth }

func (*Plain) EncryptUint64(v uint64) (Ciphertext, error) {
	return &plainCipher{v: v}, nil
}

func (p *Plain) Zero() (Ciphertext, error) { return p.EncryptUint64(0) }

func (p *Plain) Add(a, b Ciphertext) (Ciphertext, error) {
	ca, err := p.own(a)
	if err != nil {
		return nil, err
	}
	cb, err := p.own(b)
	if err != nil {
		return nil, err
	}
	return &plainCipher{v: ca.v + cb.v}, nil
}

func (p *Plain) Le(ct Ciphertext, bound uint64) (bool, error) {
	c, err := p.own(ct)
	if err != nil {
		return false, err
	}
	return c.v <= bound, nil
}

func (p *Plain) DecryptUint64(ct Ciphertext) (uint64, error) {
	c, err := p.own(ct)
	if err != nil {
		return 0, err
	}
	return c.v, nil
}

func (p *Plain) DecryptBytes(b []byte) (uint64, error) {
	ct, err := p.Deserialize(b)
	if err != nil {
		return 0, err
	}
	if ct == nil {
		return 0, fmt.Errorf("plain: decrypt of uninitialized ciphertext")
	}
	return p.DecryptUint64(ct)
}

func (*Plain) Deserialize(b []byte) (Ciphertext, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) != plainWidth {
		return nil, fmt.Errorf("plain: ciphertext is %d bytes, want %d", len(b), plainWidth)
	}
	return &plainCipher{v: binary.BigEndian.Uint64(b[plainWidth-8:])}, nil
}

func (*Plain) own(ct Ciphertext) (*plainCipher, error) {
	c, ok := ct.(*plainCipher)
	if !ok {
		return nil, fmt.Errorf("plain: foreign ciphertext %T", ct)
	}
	return c, nil
}

func (c *plainCipher) Initialized() bool { return c != nil }

func (c *plainCipher) Bytes() ([]byte, error) {
	b := make([]byte, plainWidth)
	binary.BigEndian.PutUint64(b[plainWidth-8:], c.v)
	return b, nil
}

var _ Scheme = (*Plain)(nil)
