// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the mixHash/mixKey package functions
// and InitialChainKey/InitialHash precomputation in
// internal/transport/noise-protocol.go (cedws/noisysockets); the generic
// two-output HKDF shape (as opposed to the teacher's hardcoded WireGuard
// KDF1/2/3 helpers, which were not present in the retrieved source) follows
// the hkdf+curve25519 handshake in veilconnect-VeilDeploy/crypto/noise.go
// and the Init/MixKey/MixHash/EncryptAndHash/DecryptAndHash method shape
// from the amvtek-KerPass noise package's SymetricState.

package noise

import (
	"hash"
	"io"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// protocolName is the Noise protocol name this package instantiates.
const protocolName = "Noise_IX_25519_ChaChaPoly_BLAKE2s"

// preHName is the BLAKE2s digest of protocolName, used to initialize both
// the chaining key and the handshake hash. It is reproduced as a literal
// so the value is visibly stable across Go versions and is cross-checked
// against a freshly computed digest in symmetric_test.go.
var preHName = [blake2s.Size]byte{
	0x88, 0x59, 0x73, 0x68, 0xaa, 0x9b, 0xcf, 0xb7,
	0x2e, 0xec, 0xf4, 0x2d, 0x3c, 0xc9, 0x7e, 0x3c,
	0x65, 0xd1, 0x5b, 0x6f, 0xfd, 0xd9, 0x4f, 0x59,
	0x5b, 0x11, 0xfc, 0x61, 0xc9, 0xf9, 0x00, 0xc1,
}

// symmetricState is the ck/h/k triple threaded through a handshake stage.
// It is embedded by value in each handshake stage struct (Initiator1,
// Initiator2, Responder1, Responder2) rather than shared by pointer, so
// that consuming a stage cannot accidentally alias a sibling's state.
type symmetricState struct {
	ck     [blake2s.Size]byte
	h      [blake2s.Size]byte
	cipher CipherState
	hasKey bool
}

// newSymmetricState initializes ck and h to preHName and mixes in the
// (possibly empty) prologue, per spec.md's "initiator"/"responder" entry
// points.
func newSymmetricState(prologue []byte) symmetricState {
	s := symmetricState{ck: preHName, h: preHName}
	s.mixHash(prologue)
	return s
}

func (s *symmetricState) mixHash(data []byte) {
	hash, _ := blake2s.New256(nil)
	hash.Write(s.h[:])
	hash.Write(data)
	hash.Sum(s.h[:0])
}

// mixKey runs HKDF-BLAKE2s with salt=ck and IKM=ikm, expands 64 bytes: the
// first 32 replace ck, the last 32 become the cipher's new key (nonce
// reset to zero). hasKey becomes true.
func (s *symmetricState) mixKey(ikm []byte) {
	var out [64]byte
	hkdfExpand(s.ck[:], ikm, out[:])

	copy(s.ck[:], out[:32])
	var key [chacha20poly1305.KeySize]byte
	copy(key[:], out[32:64])
	s.cipher.initializeKey(key)
	s.hasKey = true

	for i := range out {
		out[i] = 0
	}
}

// hkdfExpand fills out with len(out) bytes of HKDF-BLAKE2s(salt, ikm)
// output. salt plays the role of the HKDF "salt" parameter and ikm the
// "input keying material"; there is no extra "info" context string in the
// Noise HKDF construction.
func hkdfExpand(salt, ikm, out []byte) {
	newBlake2s := func() hash.Hash {
		h, err := blake2s.New256(nil)
		if err != nil {
			panic("noise: unreachable blake2s init failure: " + err.Error())
		}
		return h
	}
	r := hkdf.New(newBlake2s, ikm, salt, nil)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF's reader only errors past 255*hash-size bytes of output,
		// far more than the 64 bytes ever requested here.
		panic("noise: unreachable hkdf read failure: " + err.Error())
	}
}

// encryptAndHash is the handshake-time AEAD wrapper: while hasKey is
// false it is a plaintext copy plus mixHash; once true it runs AEAD with h
// as associated data and mixes the resulting ciphertext (including tag)
// into h.
func (s *symmetricState) encryptAndHash(plaintext, out []byte) (int, error) {
	if !s.hasKey {
		if cap(out) < len(plaintext) {
			return 0, ErrInput
		}
		n := copy(out[:cap(out)][:len(plaintext)], plaintext)
		s.mixHash(out[:n])
		return n, nil
	}
	n, err := s.cipher.EncryptWithAd(s.h[:], plaintext, out)
	if err != nil {
		return 0, err
	}
	s.mixHash(out[:n])
	return n, nil
}

// decryptAndHash is the inverse of encryptAndHash. Security-critical
// ordering: the post-decryption mixHash input is the ciphertext (including
// tag), never the recovered plaintext.
func (s *symmetricState) decryptAndHash(ciphertext, out []byte) (int, error) {
	if !s.hasKey {
		if cap(out) < len(ciphertext) {
			return 0, ErrInput
		}
		n := copy(out[:cap(out)][:len(ciphertext)], ciphertext)
		s.mixHash(ciphertext)
		return n, nil
	}
	n, err := s.cipher.DecryptWithAd(s.h[:], ciphertext, out)
	if err != nil {
		return 0, err
	}
	s.mixHash(ciphertext)
	return n, nil
}

// split derives two CipherStates from the final chaining key via
// HKDF-BLAKE2s over an empty IKM, and consumes the receiver: callers must
// not reuse a SymmetricState after split.
func (s *symmetricState) split() (c1, c2 CipherState) {
	var out [64]byte
	hkdfExpand(s.ck[:], nil, out[:])

	var k1, k2 [chacha20poly1305.KeySize]byte
	copy(k1[:], out[:32])
	copy(k2[:], out[32:64])
	c1.initializeKey(k1)
	c2.initializeKey(k2)

	for i := range out {
		out[i] = 0
	}
	s.clear()
	return c1, c2
}

func (s *symmetricState) clear() {
	for i := range s.ck {
		s.ck[i] = 0
	}
	for i := range s.h {
		s.h[i] = 0
	}
	s.cipher.clear()
	s.hasKey = false
}
