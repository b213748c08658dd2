// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the Keypair{send, receive} shape in
// internal/transport/noise-protocol.go (cedws/noisysockets), simplified
// from WireGuard's rekeying current/previous/next rotation to the
// two-CipherState, no-rekey model spec.md requires.

package noise

// Transport is the post-handshake duplex channel: two independent AEAD
// cipher states, one per direction, plus the peer's static public key for
// trust decisions by the surrounding application.
type Transport struct {
	rs   [DHLen]byte
	send CipherState
	recv CipherState
}

// WriteMessage authenticated-encrypts plaintext with empty associated
// data, writing len(plaintext)+TagSize bytes to out and advancing the
// send-direction nonce. Framing (e.g. length-prefixing or, as in this
// repository's wsconn package, one WebSocket binary message per frame) is
// the caller's responsibility.
func (t *Transport) WriteMessage(plaintext, out []byte) (int, error) {
	return t.send.EncryptWithAd(nil, plaintext, out)
}

// ReadMessage authenticated-decrypts ciphertext with empty associated
// data, writing len(ciphertext)-TagSize bytes to out and advancing the
// recv-direction nonce only on success.
func (t *Transport) ReadMessage(ciphertext, out []byte) (int, error) {
	return t.recv.DecryptWithAd(nil, ciphertext, out)
}

// RemoteStatic exposes the peer's static public key, learned during the
// handshake, for trust decisions by the surrounding application. The core
// itself makes no trust decisions.
func (t *Transport) RemoteStatic() [DHLen]byte {
	return t.rs
}

// NoiseWrite is the write half of a split Transport: it owns the send
// CipherState exclusively and may be driven by its own goroutine.
type NoiseWrite struct {
	rs   [DHLen]byte
	send CipherState
}

// NoiseRead is the read half of a split Transport: it owns the recv
// CipherState exclusively and may be driven by its own goroutine.
type NoiseRead struct {
	rs   [DHLen]byte
	recv CipherState
}

// Split divides the Transport into two half-duplex endpoints so that a
// reader task and a writer task may own their own CipherState
// independently. Once split, the halves cannot be rejoined.
func (t *Transport) Split() (*NoiseRead, *NoiseWrite) {
	return &NoiseRead{rs: t.rs, recv: t.recv}, &NoiseWrite{rs: t.rs, send: t.send}
}

// WriteMessage behaves like Transport.WriteMessage, using this half's
// exclusively-owned send CipherState.
func (w *NoiseWrite) WriteMessage(plaintext, out []byte) (int, error) {
	return w.send.EncryptWithAd(nil, plaintext, out)
}

// RemoteStatic exposes the peer's static public key.
func (w *NoiseWrite) RemoteStatic() [DHLen]byte {
	return w.rs
}

// ReadMessage behaves like Transport.ReadMessage, using this half's
// exclusively-owned recv CipherState.
func (r *NoiseRead) ReadMessage(ciphertext, out []byte) (int, error) {
	return r.recv.DecryptWithAd(nil, ciphertext, out)
}

// RemoteStatic exposes the peer's static public key.
func (r *NoiseRead) RemoteStatic() [DHLen]byte {
	return r.rs
}
