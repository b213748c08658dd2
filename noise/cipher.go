// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the AEAD call sites in
// internal/transport/noise-protocol.go (cedws/noisysockets).

package noise

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

// TagSize is the length in bytes of the ChaCha20-Poly1305 authentication tag.
const TagSize = chacha20poly1305.Overhead // 16

// CipherState is keyed AEAD state: a 32-byte key and a monotonically
// incrementing 64-bit nonce counter. It is the innermost layer of the
// Noise symmetric state and, after split, the sole state backing one
// direction of a Transport. Once the counter reaches 2^64-1 the nonce
// space is exhausted and every further encrypt or decrypt fails with
// ErrDecrypt; there is no rekeying.
type CipherState struct {
	k [chacha20poly1305.KeySize]byte
	n uint64
}

// initializeKey sets the cipher's key and resets its nonce counter to zero.
func (c *CipherState) initializeKey(key [chacha20poly1305.KeySize]byte) {
	c.k = key
	c.n = 0
}

// nonceBytes renders the current counter as a 96-bit little-endian nonce:
// 32 zero bits followed by the 64-bit counter.
func nonceBytes(n uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce
}

// EncryptWithAd runs ChaCha20-Poly1305 with the cipher's key and current
// nonce over plaintext with associated data ad, writing ciphertext
// followed by a 16-byte tag into out starting at out[0]. It returns the
// number of bytes written (len(plaintext)+TagSize) and advances the nonce
// on success. out must have at least len(plaintext)+TagSize bytes of
// capacity.
func (c *CipherState) EncryptWithAd(ad, plaintext []byte, out []byte) (int, error) {
	need := len(plaintext) + TagSize
	if cap(out) < need {
		return 0, ErrInput
	}
	if c.n == math.MaxUint64 {
		return 0, ErrDecrypt
	}
	aead, err := chacha20poly1305.New(c.k[:])
	if err != nil {
		return 0, err
	}
	nonce := nonceBytes(c.n)
	sealed := aead.Seal(out[:0], nonce[:], plaintext, ad)
	c.n++
	return len(sealed), nil
}

// DecryptWithAd is the inverse of EncryptWithAd: it verifies the 16-byte
// tag and, on success, writes the recovered plaintext to out and advances
// the nonce. It returns ErrDecrypt on tag mismatch and ErrInput if
// ciphertext is shorter than TagSize.
func (c *CipherState) DecryptWithAd(ad, ciphertext []byte, out []byte) (int, error) {
	if len(ciphertext) < TagSize {
		return 0, ErrInput
	}
	if cap(out) < len(ciphertext)-TagSize {
		return 0, ErrInput
	}
	if c.n == math.MaxUint64 {
		return 0, ErrDecrypt
	}
	aead, err := chacha20poly1305.New(c.k[:])
	if err != nil {
		return 0, err
	}
	nonce := nonceBytes(c.n)
	plain, err := aead.Open(out[:0], nonce[:], ciphertext, ad)
	if err != nil {
		return 0, ErrDecrypt
	}
	c.n++
	return len(plain), nil
}

// Nonce returns the cipher's current nonce counter, useful for tests and
// diagnostics; it is not part of the wire format.
func (c *CipherState) Nonce() uint64 {
	return c.n
}

func (c *CipherState) clear() {
	for i := range c.k {
		c.k[i] = 0
	}
	c.n = 0
}
