// Package fhe provides the homomorphic value backend the batching engine
// computes over. The engine never sees plaintext amounts: it receives
// ciphertexts, sums them with Add, and hands the serialized totals to the
// decryption authority. Two schemes are provided: a lattigo CKKS scheme for
// real deployments and a plain scheme carrying cleartext for devnet/tests.
package fhe

// Ciphertext is an opaque encrypted integer. A nil Ciphertext is the
// uninitialized value; Initialized reports whether the value carries a
// real encryption.
type Ciphertext interface {
	// Bytes returns the fixed-width serialization of the ciphertext.
	// Every ciphertext produced by the same scheme serializes to
	// exactly Width bytes.
	Bytes() ([]byte, error)

	// Initialized reports whether the ciphertext holds an encryption.
	Initialized() bool
}

// Evaluator is the public half of a scheme: everything the engine needs
// to aggregate without decryption capability on totals.
type Evaluator interface {
	// Zero returns a fresh encryption of zero.
	Zero() (Ciphertext, error)

	// Add returns the homomorphic sum a+b.
	Add(a, b Ciphertext) (Ciphertext, error)

	// Le reports whether the encrypted value is <= bound. The result is
	// resolved through the authority's key material; see the scheme docs
	// for the trust model.
	Le(ct Ciphertext, bound uint64) (bool, error)

	// Deserialize parses a serialized ciphertext. Empty input yields a
	// nil (uninitialized) ciphertext.
	Deserialize(b []byte) (Ciphertext, error)

	// Width is the fixed serialized size in bytes.
	Width() int
}

// Encryptor produces fresh ciphertexts. Held by order submitters.
type Encryptor interface {
	EncryptUint64(v uint64) (Ciphertext, error)
}

// Decryptor is the authority half. Only the decryption oracle holds one.
type Decryptor interface {
	DecryptUint64(ct Ciphertext) (uint64, error)
	DecryptBytes(b []byte) (uint64, error)
}

// Scheme is a full keychain: evaluate, encrypt, decrypt.
type Scheme interface {
	Evaluator
	Encryptor
	Decryptor
}
