// Package oracle implements the decryption authority boundary. The engine
// only knows the Submit/Verify contract; Local is an in-process authority
// holding the scheme's decryption capability, answering asynchronously the
// way a gateway service would.
package oracle

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/crypto"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/engine"
	"github.com/yjamesjbviele/RWA-DEX-Fhe/pkg/fhe"
)

// Local is a single-key decryption authority. Request ids are sha3-256
// digests over a nonce and the submitted ciphertexts; results are
// BLS-signed over requestId || cleartext.
type Local struct {
	mu      sync.Mutex
	dec     fhe.Decryptor
	signer  *crypto.BLSSigner
	log     *zap.SugaredLogger
	nonce   uint64
	pending map[engine.RequestID][][]byte
	queue   chan engine.RequestID
}

func NewLocal(dec fhe.Decryptor, signer *crypto.BLSSigner, log *zap.SugaredLogger) *Local {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Local{
		dec:     dec,
		signer:  signer,
		log:     log,
		pending: make(map[engine.RequestID][][]byte),
		queue:   make(chan engine.RequestID, 64),
	}
}

// Submit registers the ciphertexts and returns the request id. Decryption
// happens later; the id is queued for the responder.
func (o *Local) Submit(ciphertexts [][]byte) (engine.RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(ciphertexts) == 0 {
		return engine.RequestID{}, fmt.Errorf("oracle: empty submission")
	}

	o.nonce++
	h := sha3.New256()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], o.nonce)
	h.Write(buf[:])
	for _, ct := range ciphertexts {
		h.Write(ct)
	}
	var id engine.RequestID
	copy(id[:], h.Sum(nil))

	stored := make([][]byte, len(ciphertexts))
	for i, ct := range ciphertexts {
		stored[i] = append([]byte(nil), ct...)
	}
	o.pending[id] = stored

	select {
	case o.queue <- id:
	default:
		// queue full; the request stays pending and can be answered
		// via Respond directly
		o.log.Warnw("oracle_queue_full", "request", fmt.Sprintf("%x", id[:8]))
	}
	o.log.Infow("decryption_submitted", "request", fmt.Sprintf("%x", id[:8]), "ciphertexts", len(ciphertexts))
	return id, nil
}

// Respond decrypts a pending request and signs the result. The cleartext
// is one 8-byte big-endian field per submitted ciphertext, in submission
// order.
func (o *Local) Respond(id engine.RequestID) (cleartext, proof []byte, err error) {
	o.mu.Lock()
	cts, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	o.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("oracle: no pending request %x", id[:8])
	}

	cleartext = make([]byte, 0, 8*len(cts))
	for i, ct := range cts {
		v, err := o.dec.DecryptBytes(ct)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle: decrypt ciphertext %d: %w", i, err)
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		cleartext = append(cleartext, buf[:]...)
	}
	proof = o.signer.Sign(proofMessage(id, cleartext))
	return cleartext, proof, nil
}

// Verify checks the authority's BLS proof over (requestId, cleartext).
func (o *Local) Verify(id engine.RequestID, cleartext, proof []byte) error {
	if !crypto.BLSVerify(o.signer.Pubkey(), proof, proofMessage(id, cleartext)) {
		return fmt.Errorf("oracle: bad proof for request %x", id[:8])
	}
	return nil
}

// Serve answers queued requests until ctx is done, delivering each result
// through handler as an independent invocation. This is the only
// asynchronous boundary in the system.
func (o *Local) Serve(ctx context.Context, handler func(id engine.RequestID, cleartext, proof []byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			cleartext, proof, err := o.Respond(id)
			if err != nil {
				o.log.Errorw("oracle_respond_failed", "request", fmt.Sprintf("%x", id[:8]), "err", err)
				continue
			}
			handler(id, cleartext, proof)
		}
	}
}

func proofMessage(id engine.RequestID, cleartext []byte) []byte {
	msg := make([]byte, 0, len(id)+len(cleartext))
	msg = append(msg, id[:]...)
	msg = append(msg, cleartext...)
	return msg
}

var _ engine.Oracle = (*Local)(nil)
