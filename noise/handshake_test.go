// SPDX-License-Identifier: MPL-2.0

package noise

import (
	"bytes"
	"testing"
)

// fixedKeys returns the deterministic key set used throughout spec.md §8:
// e=[0]*32, s=[1]*32, re=[2]*32, rs=[3]*32.
func fixedKeys() (e, s, re, rs [DHLen]byte) {
	for i := range s {
		s[i] = 1
	}
	for i := range re {
		re[i] = 2
	}
	for i := range rs {
		rs[i] = 3
	}
	return
}

// runHandshake drives a full initiator/responder handshake with the given
// keys and flight payloads, returning the two resulting Transports.
func runHandshake(t *testing.T, ie, is, re, rs [DHLen]byte, p1, p2 []byte) (Transport, Transport) {
	t.Helper()

	init1 := Initiator(ie, is, nil)
	resp1 := Responder(re, rs, nil)

	msg1 := make([]byte, handshakeOverhead1+len(p1))
	n1, init2, err := init1.WriteMessage(p1, msg1)
	if err != nil {
		t.Fatalf("flight1 WriteMessage: %v", err)
	}
	if n1 != handshakeOverhead1+len(p1) {
		t.Fatalf("flight1 length = %d, want %d", n1, handshakeOverhead1+len(p1))
	}

	recvP1 := make([]byte, len(p1))
	rn1, resp2, err := resp1.ReadMessage(msg1[:n1], recvP1)
	if err != nil {
		t.Fatalf("flight1 ReadMessage: %v", err)
	}
	if !bytes.Equal(recvP1[:rn1], p1) {
		t.Fatalf("flight1 payload mismatch: got %q want %q", recvP1[:rn1], p1)
	}

	msg2 := make([]byte, handshakeOverhead2+len(p2))
	n2, respTransport, err := resp2.WriteMessage(p2, msg2)
	if err != nil {
		t.Fatalf("flight2 WriteMessage: %v", err)
	}
	if n2 != handshakeOverhead2+len(p2) {
		t.Fatalf("flight2 length = %d, want %d", n2, handshakeOverhead2+len(p2))
	}

	recvP2 := make([]byte, len(p2))
	rn2, initTransport, err := init2.ReadMessage(msg2[:n2], recvP2)
	if err != nil {
		t.Fatalf("flight2 ReadMessage: %v", err)
	}
	if !bytes.Equal(recvP2[:rn2], p2) {
		t.Fatalf("flight2 payload mismatch: got %q want %q", recvP2[:rn2], p2)
	}

	return initTransport, respTransport
}

// S1: fixed keys, empty payloads, then a 7-byte payload encrypted twice
// in a row from initiator to responder, with the responder's recv-nonce
// advancing 0->1->2.
func TestS1FixedKeysEmptyPayloads(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, respT := runHandshake(t, e, s, re, rs, nil, nil)

	payload := b("hell no")
	for i := 0; i < 2; i++ {
		out := make([]byte, len(payload)+TagSize)
		n, err := initT.WriteMessage(payload, out)
		if err != nil {
			t.Fatalf("round %d: WriteMessage: %v", i, err)
		}
		if n != len(payload)+TagSize {
			t.Fatalf("round %d: ciphertext length = %d, want %d", i, n, len(payload)+TagSize)
		}
		recovered := make([]byte, len(payload))
		m, err := respT.ReadMessage(out[:n], recovered)
		if err != nil {
			t.Fatalf("round %d: ReadMessage: %v", i, err)
		}
		if !bytes.Equal(recovered[:m], payload) {
			t.Fatalf("round %d: payload mismatch", i)
		}
	}
	if respT.recv.Nonce() != 2 {
		t.Fatalf("responder recv nonce = %d, want 2", respT.recv.Nonce())
	}
}

// S2: empty flight-1 payload, "hi" flight-2 payload; initiator learns the
// responder's static public key (Property 5, and symmetrically for the
// responder learning the initiator's).
func TestS2LearnsRemoteStatic(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, respT := runHandshake(t, e, s, re, rs, nil, b("hi"))

	if initT.RemoteStatic() != PubKey(rs) {
		t.Fatalf("initiator remote static = %x, want responder's pub_key(s) = %x", initT.RemoteStatic(), PubKey(rs))
	}
	if respT.RemoteStatic() != PubKey(s) {
		t.Fatalf("responder remote static = %x, want initiator's pub_key(s) = %x", respT.RemoteStatic(), PubKey(s))
	}
}

// S3: flipping the last byte of the responder's flight-2 output causes
// the initiator's flight-2 read to fail with Decrypt.
func TestS3TamperedFlight2IsDecryptError(t *testing.T) {
	e, s, re, rs := fixedKeys()

	init1 := Initiator(e, s, nil)
	resp1 := Responder(re, rs, nil)

	msg1 := make([]byte, handshakeOverhead1)
	n1, init2, err := init1.WriteMessage(nil, msg1)
	if err != nil {
		t.Fatalf("flight1 write: %v", err)
	}
	_, resp2, err := resp1.ReadMessage(msg1[:n1], nil)
	if err != nil {
		t.Fatalf("flight1 read: %v", err)
	}

	msg2 := make([]byte, handshakeOverhead2)
	n2, _, err := resp2.WriteMessage(nil, msg2)
	if err != nil {
		t.Fatalf("flight2 write: %v", err)
	}
	msg2[n2-1] ^= 0xff

	if _, _, err := init2.ReadMessage(msg2[:n2], nil); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt for a tampered flight-2 message, got %v", err)
	}
}

// S4: Initiator1.WriteMessage with a 32-byte out and a zero-length
// payload must fail Input (needs 64) and must not mutate cryptographic
// state (the stage must remain usable/unconsumed).
func TestS4UndersizedFlight1OutIsInput(t *testing.T) {
	e, s, _, _ := fixedKeys()
	init1 := Initiator(e, s, nil)
	out := make([]byte, 32)
	if _, _, err := init1.WriteMessage(nil, out); err != ErrInput {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	if init1.done {
		t.Fatalf("a rejected WriteMessage must not consume the stage")
	}

	// The stage must still be usable with a correctly sized buffer.
	out = make([]byte, handshakeOverhead1)
	if _, _, err := init1.WriteMessage(nil, out); err != nil {
		t.Fatalf("retry with a correctly sized buffer should succeed: %v", err)
	}
}

// S5: after a completed handshake, 1000 consecutive 64-byte payloads in
// one direction all round-trip and both nonces reach 1000.
func TestS5ThousandFramesOneDirection(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, respT := runHandshake(t, e, s, re, rs, nil, nil)

	payload := bytes.Repeat([]byte{0xAB}, 64)
	for i := 0; i < 1000; i++ {
		out := make([]byte, len(payload)+TagSize)
		if _, err := initT.WriteMessage(payload, out); err != nil {
			t.Fatalf("frame %d write: %v", i, err)
		}
		recovered := make([]byte, len(payload))
		n, err := respT.ReadMessage(out, recovered)
		if err != nil {
			t.Fatalf("frame %d read: %v", i, err)
		}
		if !bytes.Equal(recovered[:n], payload) {
			t.Fatalf("frame %d payload mismatch", i)
		}
	}
	if initT.send.Nonce() != 1000 || respT.recv.Nonce() != 1000 {
		t.Fatalf("nonces = send:%d recv:%d, want 1000/1000", initT.send.Nonce(), respT.recv.Nonce())
	}
}

// S6: a peer that sends an all-zero (known low-order) public key as its
// flight-1 ephemeral forces the ee token's DH to fail, aborting the
// handshake with Dh before any flight-2 bytes are produced.
func TestS6DegenerateRemoteEphemeralIsDHError(t *testing.T) {
	var re, rs [DHLen]byte
	for i := range re {
		re[i] = 2
	}
	for i := range rs {
		rs[i] = 3
	}
	resp1 := Responder(re, rs, nil)

	// Craft a flight-1 message with an all-zero ephemeral public key
	// instead of a legitimately derived one, simulating a malicious or
	// corrupted peer.
	msg1 := make([]byte, handshakeOverhead1)
	copy(msg1[0:32], make([]byte, 32))       // msg_re: the identity point
	sPub := PubKey([DHLen]byte{1})           // any syntactically valid static key
	copy(msg1[32:64], sPub[:])

	_, resp2, err := resp1.ReadMessage(msg1, nil)
	if err != nil {
		t.Fatalf("flight1 read should succeed (no DH is performed yet): %v", err)
	}

	out := make([]byte, handshakeOverhead2)
	if _, _, err := resp2.WriteMessage(nil, out); err != ErrDh {
		t.Fatalf("expected ErrDh for a degenerate remote ephemeral key, got %v", err)
	}
}

// Property 2/3: round-trip and direction independence. Interleaved writes
// in either direction must not affect the other direction's nonce or key.
func TestDirectionIndependence(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, respT := runHandshake(t, e, s, re, rs, nil, nil)

	for i := 0; i < 10; i++ {
		out := make([]byte, len(b("a"))+TagSize)
		if _, err := initT.WriteMessage(b("a"), out); err != nil {
			t.Fatalf("init->resp write %d: %v", i, err)
		}
		recv := make([]byte, 1)
		if _, err := respT.ReadMessage(out, recv); err != nil {
			t.Fatalf("init->resp read %d: %v", i, err)
		}
	}

	if respT.send.Nonce() != 0 {
		t.Fatalf("responder's send nonce must be unaffected by the initiator->responder direction")
	}
	if initT.recv.Nonce() != 0 {
		t.Fatalf("initiator's recv nonce must be unaffected by the initiator->responder direction")
	}

	out := make([]byte, len(b("b"))+TagSize)
	if _, err := respT.WriteMessage(b("b"), out); err != nil {
		t.Fatalf("resp->init write: %v", err)
	}
	recv := make([]byte, 1)
	if _, err := initT.ReadMessage(out, recv); err != nil {
		t.Fatalf("resp->init read: %v", err)
	}
	if initT.send.Nonce() != 10 {
		t.Fatalf("initiator send nonce should still be 10 after an unrelated reverse-direction message")
	}
}

// Transport.Split: the two halves can be driven independently and a
// split Transport cannot be rejoined (no API offers that).
func TestTransportSplit(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, respT := runHandshake(t, e, s, re, rs, nil, nil)

	initRead, initWrite := initT.Split()
	respRead, respWrite := respT.Split()

	out := make([]byte, len(b("x"))+TagSize)
	if _, err := initWrite.WriteMessage(b("x"), out); err != nil {
		t.Fatalf("write: %v", err)
	}
	recv := make([]byte, 1)
	n, err := respRead.ReadMessage(out, recv)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(recv[:n]) != "x" {
		t.Fatalf("recovered %q, want %q", recv[:n], "x")
	}
	if initRead.RemoteStatic() != PubKey(rs) || respWrite.RemoteStatic() != PubKey(s) {
		t.Fatalf("split halves must retain the remote static key")
	}
}

// referenceFlight1 and referenceFlight2 are the Noise_IX_25519_ChaChaPoly_BLAKE2s
// flight-1 and flight-2 outputs for the fixed key set e=[0]*32, s=[1]*32,
// re=[2]*32, rs=[3]*32, empty prologue, empty handshake payloads, computed
// once against an independent from-scratch reimplementation of the
// handshake (X25519 via the RFC 7748 Montgomery ladder, ChaCha20-Poly1305
// per RFC 8439, HKDF over BLAKE2s via Python's stdlib hashlib/hmac — no
// code or constants shared with this package's golang.org/x/crypto-based
// implementation). See DESIGN.md for how the reference was validated and
// derived.
var referenceFlight1 = []byte{
	0x2f, 0xe5, 0x7d, 0xa3, 0x47, 0xcd, 0x62, 0x43, 0x15, 0x28, 0xda, 0xac, 0x5f, 0xbb, 0x29, 0x07,
	0x30, 0xff, 0xf6, 0x84, 0xaf, 0xc4, 0xcf, 0xc2, 0xed, 0x90, 0x99, 0x5f, 0x58, 0xcb, 0x3b, 0x74,
	0xa4, 0xe0, 0x92, 0x92, 0xb6, 0x51, 0xc2, 0x78, 0xb9, 0x77, 0x2c, 0x56, 0x9f, 0x5f, 0xa9, 0xbb,
	0x13, 0xd9, 0x06, 0xb4, 0x6a, 0xb6, 0x8c, 0x9d, 0xf9, 0xdc, 0x2b, 0x44, 0x09, 0xf8, 0xa2, 0x09,
}

var referenceFlight2 = []byte{
	0xce, 0x8d, 0x3a, 0xd1, 0xcc, 0xb6, 0x33, 0xec, 0x7b, 0x70, 0xc1, 0x78, 0x14, 0xa5, 0xc7, 0x6e,
	0xcd, 0x02, 0x96, 0x85, 0x05, 0x0d, 0x34, 0x47, 0x45, 0xba, 0x05, 0x87, 0x0e, 0x58, 0x7d, 0x59,
	0x71, 0x34, 0x4f, 0x38, 0x3c, 0x8c, 0x66, 0xcd, 0x9c, 0xba, 0x4e, 0x87, 0x5a, 0xe3, 0xbb, 0x7a,
	0x68, 0x25, 0x35, 0x4f, 0x16, 0xb0, 0x94, 0x93, 0xc8, 0xbf, 0xd2, 0xc5, 0x67, 0xf6, 0x7d, 0xb3,
	0x08, 0x3c, 0x77, 0xf7, 0xec, 0xec, 0xae, 0x2f, 0x1d, 0x90, 0xe9, 0x07, 0xfe, 0x2a, 0x30, 0x96,
	0xd8, 0x35, 0x68, 0x80, 0x81, 0xe5, 0xe0, 0x32, 0xa6, 0x15, 0x7e, 0x1b, 0x12, 0x8c, 0xae, 0x0a,
}

// TestBitExactInteropFixedKeys is spec.md §8 Property 1: flight-1 and
// flight-2 bytes must match an independent reference implementation
// exactly, not merely round-trip against themselves.
func TestBitExactInteropFixedKeys(t *testing.T) {
	e, s, re, rs := fixedKeys()

	init1 := Initiator(e, s, nil)
	resp1 := Responder(re, rs, nil)

	msg1 := make([]byte, handshakeOverhead1)
	n1, init2, err := init1.WriteMessage(nil, msg1)
	if err != nil {
		t.Fatalf("flight1 WriteMessage: %v", err)
	}
	if !bytes.Equal(msg1[:n1], referenceFlight1) {
		t.Fatalf("flight1 mismatch:\n got  %x\n want %x", msg1[:n1], referenceFlight1)
	}

	_, resp2, err := resp1.ReadMessage(msg1[:n1], nil)
	if err != nil {
		t.Fatalf("flight1 ReadMessage: %v", err)
	}

	msg2 := make([]byte, handshakeOverhead2)
	n2, _, err := resp2.WriteMessage(nil, msg2)
	if err != nil {
		t.Fatalf("flight2 WriteMessage: %v", err)
	}
	if !bytes.Equal(msg2[:n2], referenceFlight2) {
		t.Fatalf("flight2 mismatch:\n got  %x\n want %x", msg2[:n2], referenceFlight2)
	}

	if _, _, err := init2.ReadMessage(msg2[:n2], nil); err != nil {
		t.Fatalf("flight2 ReadMessage against the reference bytes: %v", err)
	}
}

// Property 6 (buffer discipline): an output buffer one byte short of the
// documented minimum returns Input and mutates no cryptographic state,
// for the Transport layer too.
func TestTransportWriteUndersizedOutIsInput(t *testing.T) {
	e, s, re, rs := fixedKeys()
	initT, _ := runHandshake(t, e, s, re, rs, nil, nil)

	out := make([]byte, len(b("payload"))+TagSize-1)
	if _, err := initT.WriteMessage(b("payload"), out); err != ErrInput {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	if initT.send.Nonce() != 0 {
		t.Fatalf("a rejected write must not advance the nonce")
	}
}
