package fhe

import (
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// encoding precision in bits, matches float64 mantissa
const encPrec = uint(53)

// CKKS is a lattigo-backed scheme. A single instance holds the full
// keychain; callers that should only evaluate take it through the
// Evaluator interface, the oracle takes it through Decryptor.
//
// Every ciphertext is fresh degree-1 at max level with the default scale,
// and Add preserves both, so serialization is fixed-width.
type CKKS struct {
	params    ckks.Parameters
	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	evaluator *ckks.Evaluator
	width     int
}

type ckksCipher struct {
	s  *CKKS
	ct *rlwe.Ciphertext
}

// DefaultLogN keeps keygen and per-order adds fast enough for devnet while
// leaving plenty of slack for exact integer sums at 40-bit scale.
const DefaultLogN = 12

// NewCKKS generates a fresh keychain. Amounts are encoded in slot 0 only.
func NewCKKS(logN int) (*CKKS, error) {
	if logN <= 0 {
		logN = DefaultLogN
	}
	lit := ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{60, 40, 40, 60},
		LogP:            []int{60},
		LogDefaultScale: 40,
	}
	params, err := ckks.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, fmt.Errorf("ckks params: %w", err)
	}

	kgen := ckks.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)
	evk := rlwe.NewMemEvaluationKeySet(rlk)

	s := &CKKS{
		params:    params,
		encoder:   ckks.NewEncoder(params, encPrec),
		encryptor: ckks.NewEncryptor(params, pk),
		decryptor: ckks.NewDecryptor(params, sk),
		evaluator: ckks.NewEvaluator(params, evk),
	}

	// All ciphertexts share the same shape, so one sample fixes the width.
	zero, err := s.EncryptUint64(0)
	if err != nil {
		return nil, err
	}
	b, err := zero.Bytes()
	if err != nil {
		return nil, err
	}
	s.width = len(b)
	return s, nil
}

func (s *CKKS) Width() int { return s.width }

func (s *CKKS) EncryptUint64(v uint64) (Ciphertext, error) {
	level := s.params.MaxLevel()
	pt := ckks.NewPlaintext(s.params, level)
	vec := make([]complex128, s.params.MaxSlots())
	vec[0] = complex(float64(v), 0)
	if err := s.encoder.Encode(vec, pt); err != nil {
		return nil, fmt.Errorf("ckks encode: %w", err)
	}
	ct := ckks.NewCiphertext(s.params, 1, level)
	if err := s.encryptor.Encrypt(pt, ct); err != nil {
		return nil, fmt.Errorf("ckks encrypt: %w", err)
	}
	return &ckksCipher{s: s, ct: ct}, nil
}

func (s *CKKS) Zero() (Ciphertext, error) { return s.EncryptUint64(0) }

func (s *CKKS) Add(a, b Ciphertext) (Ciphertext, error) {
	ca, err := s.own(a)
	if err != nil {
		return nil, err
	}
	cb, err := s.own(b)
	if err != nil {
		return nil, err
	}
	level := ca.ct.Level()
	if cb.ct.Level() < level {
		level = cb.ct.Level()
	}
	out := ckks.NewCiphertext(s.params, 1, level)
	out.Scale = ca.ct.Scale
	if err := s.evaluator.Add(ca.ct, cb.ct, out); err != nil {
		return nil, fmt.Errorf("ckks add: %w", err)
	}
	return &ckksCipher{s: s, ct: out}, nil
}

// Le resolves the comparison through the scheme's decryption capability.
// In a split deployment this call lands on the authority side; the engine
// only ever observes the boolean.
func (s *CKKS) Le(ct Ciphertext, bound uint64) (bool, error) {
	v, err := s.DecryptUint64(ct)
	if err != nil {
		return false, err
	}
	return v <= bound, nil
}

func (s *CKKS) DecryptUint64(ct Ciphertext) (uint64, error) {
	c, err := s.own(ct)
	if err != nil {
		return 0, err
	}
	pt := ckks.NewPlaintext(s.params, c.ct.Level())
	s.decryptor.Decrypt(c.ct, pt)
	pt.Scale = c.ct.Scale
	vec := make([]complex128, s.params.MaxSlots())
	if err := s.encoder.Decode(pt, vec); err != nil {
		return 0, fmt.Errorf("ckks decode: %w", err)
	}
	v := math.Round(real(vec[0]))
	if v < 0 {
		v = 0
	}
	return uint64(v), nil
}

func (s *CKKS) DecryptBytes(b []byte) (uint64, error) {
	ct, err := s.Deserialize(b)
	if err != nil {
		return 0, err
	}
	if ct == nil {
		return 0, fmt.Errorf("ckks: decrypt of uninitialized ciphertext")
	}
	return s.DecryptUint64(ct)
}

func (s *CKKS) Deserialize(b []byte) (Ciphertext, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) != s.width {
		return nil, fmt.Errorf("ckks: ciphertext is %d bytes, want %d", len(b), s.width)
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("ckks unmarshal: %w", err)
	}
	return &ckksCipher{s: s, ct: ct}, nil
}

func (s *CKKS) own(ct Ciphertext) (*ckksCipher, error) {
	c, ok := ct.(*ckksCipher)
	if !ok || c.s != s {
		return nil, fmt.Errorf("ckks: foreign ciphertext %T", ct)
	}
	return c, nil
}

func (c *ckksCipher) Initialized() bool { return c != nil && c.ct != nil }

func (c *ckksCipher) Bytes() ([]byte, error) {
	b, err := c.ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ckks marshal: %w", err)
	}
	return b, nil
}

var _ Scheme = (*CKKS)(nil)
