// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the flight sequencing in
// CreateMessageInitiation/ConsumeMessageInitiation/CreateMessageResponse/
// ConsumeMessageResponse and the split-into-keypair step of
// BeginSymmetricSession in internal/transport/noise-protocol.go
// (cedws/noisysockets), restructured from a single mutable Handshake
// struct with a handshakeState enum into the one-shot, consuming value
// types spec.md's design notes call for.

package noise

import "fmt"

// handshakeOverhead1 is the plaintext overhead of flight 1: e_pub ‖ s_pub.
const handshakeOverhead1 = 2 * DHLen // 64

// handshakeOverhead2 is the overhead of flight 2:
// e_pub ‖ s_pub_ciphertext(32+16) ‖ payload_tag(16).
const handshakeOverhead2 = DHLen + DHLen + TagSize + TagSize // 96

// Initiator1 is the initiator's state before sending flight 1. It is a
// one-shot value: WriteMessage consumes it and returns an Initiator2.
type Initiator1 struct {
	e, s [DHLen]byte
	sym  symmetricState
	done bool
}

// Initiator2 is the initiator's state after sending flight 1, before
// receiving flight 2. ReadMessage consumes it and returns a Transport.
type Initiator2 struct {
	e, s [DHLen]byte
	sym  symmetricState
	done bool
}

// Responder1 is the responder's state before receiving flight 1.
// ReadMessage consumes it and returns a Responder2.
type Responder1 struct {
	e, s [DHLen]byte
	sym  symmetricState
	done bool
}

// Responder2 is the responder's state after receiving flight 1, before
// sending flight 2. WriteMessage consumes it and returns a Transport.
type Responder2 struct {
	e, s   [DHLen]byte
	re, rs [DHLen]byte
	sym    symmetricState
	done   bool
}

// Initiator begins a Noise_IX_25519_ChaChaPoly_BLAKE2s handshake as the
// initiator. e and s are the caller-supplied ephemeral and static private
// keys; prologue is mixed into the transcript before any message exchange
// (this implementation always passes an empty prologue from its
// collaborators, but accepts a caller-supplied one for generality).
func Initiator(e, s [DHLen]byte, prologue []byte) Initiator1 {
	return Initiator1{e: e, s: s, sym: newSymmetricState(prologue)}
}

// Responder begins a Noise_IX_25519_ChaChaPoly_BLAKE2s handshake as the
// responder.
func Responder(e, s [DHLen]byte, prologue []byte) Responder1 {
	return Responder1{e: e, s: s, sym: newSymmetricState(prologue)}
}

// WriteMessage produces flight 1: e_pub ‖ s_pub ‖ payload, all in the
// clear (no AEAD has been established yet). out must have at least
// 64+len(payload) bytes of capacity. On success it returns the number of
// bytes written and an Initiator2 to carry forward; i1 must not be reused.
func (i1 *Initiator1) WriteMessage(payload, out []byte) (int, Initiator2, error) {
	if i1.done {
		return 0, Initiator2{}, fmt.Errorf("noise: Initiator1 already consumed")
	}
	need := handshakeOverhead1 + len(payload)
	if cap(out) < need {
		return 0, Initiator2{}, ErrInput
	}
	out = out[:need]

	msgE := out[0:32]
	msgS := out[32:64]
	msgP := out[64:need]

	ePub := PubKey(i1.e)
	copy(msgE, ePub[:])
	i1.sym.mixHash(msgE)

	sPub := PubKey(i1.s)
	copy(msgS, sPub[:])
	i1.sym.mixHash(msgS)

	copy(msgP, payload)
	i1.sym.mixHash(msgP)

	next := Initiator2{e: i1.e, s: i1.s, sym: i1.sym}
	i1.sym.clear()
	i1.done = true
	return need, next, nil
}

// ReadMessage consumes flight 1: it expects e_pub ‖ s_pub ‖ payload and
// writes the recovered payload to payloadOut. msg must be at least 64
// bytes and payloadOut must have capacity for len(msg)-64 bytes. On
// success it returns the payload length and a Responder2 to carry
// forward; r1 must not be reused.
func (r1 *Responder1) ReadMessage(msg, payloadOut []byte) (int, Responder2, error) {
	if r1.done {
		return 0, Responder2{}, fmt.Errorf("noise: Responder1 already consumed")
	}
	if len(msg) < handshakeOverhead1 {
		return 0, Responder2{}, ErrInput
	}
	plen := len(msg) - handshakeOverhead1
	if cap(payloadOut) < plen {
		return 0, Responder2{}, ErrInput
	}

	msgRe := msg[0:32]
	msgRs := msg[32:64]
	msgRp := msg[64:]

	var re, rs [DHLen]byte
	copy(re[:], msgRe)
	r1.sym.mixHash(msgRe)

	copy(rs[:], msgRs)
	r1.sym.mixHash(msgRs)

	payloadOut = payloadOut[:plen]
	copy(payloadOut, msgRp)
	r1.sym.mixHash(payloadOut)

	next := Responder2{e: r1.e, s: r1.s, re: re, rs: rs, sym: r1.sym}
	r1.sym.clear()
	r1.done = true
	return plen, next, nil
}

// WriteMessage produces flight 2 as the responder: e_pub ‖
// s_pub_ciphertext ‖ payload_ciphertext, performing the ee/se/s/es tokens
// and the terminal split. out must have at least 96+len(payload) bytes of
// capacity. r2 must not be reused.
func (r2 *Responder2) WriteMessage(payload, out []byte) (int, Transport, error) {
	if r2.done {
		return 0, Transport{}, fmt.Errorf("noise: Responder2 already consumed")
	}
	need := handshakeOverhead2 + len(payload)
	if cap(out) < need {
		return 0, Transport{}, ErrInput
	}
	// Every path past this point mutates r2.sym; mark the stage consumed
	// now so a caller that gets an error (e.g. a DH failure mid-flight)
	// cannot retry against partially-mixed symmetric state.
	r2.done = true
	out = out[:need]

	msgE := out[0:32]
	msgSEnc := out[32 : 32+32+TagSize]
	msgPEnc := out[32+32+TagSize : need]

	ePub := PubKey(r2.e)
	copy(msgE, ePub[:])
	r2.sym.mixHash(msgE)

	ee, err := dh(r2.e, r2.re)
	if err != nil {
		return 0, Transport{}, err
	}
	r2.sym.mixKey(ee[:])

	se, err := dh(r2.e, r2.rs)
	if err != nil {
		return 0, Transport{}, err
	}
	r2.sym.mixKey(se[:])

	sPub := PubKey(r2.s)
	if _, err := r2.sym.encryptAndHash(sPub[:], msgSEnc); err != nil {
		return 0, Transport{}, err
	}

	es, err := dh(r2.s, r2.re)
	if err != nil {
		return 0, Transport{}, err
	}
	r2.sym.mixKey(es[:])

	if _, err := r2.sym.encryptAndHash(payload, msgPEnc); err != nil {
		return 0, Transport{}, err
	}

	c1, c2 := r2.sym.split()

	// Responder: send=c2, recv=c1.
	return need, Transport{rs: r2.rs, send: c2, recv: c1}, nil
}

// ReadMessage consumes flight 2 as the initiator, performing the ee/se/es
// tokens, decrypting the responder's static key and payload, and the
// terminal split. msg must be at least 96 bytes and payloadOut must have
// capacity for len(msg)-96 bytes. i2 must not be reused.
func (i2 *Initiator2) ReadMessage(msg, payloadOut []byte) (int, Transport, error) {
	if i2.done {
		return 0, Transport{}, fmt.Errorf("noise: Initiator2 already consumed")
	}
	if len(msg) < handshakeOverhead2 {
		return 0, Transport{}, ErrInput
	}
	plen := len(msg) - handshakeOverhead2
	if cap(payloadOut) < plen {
		return 0, Transport{}, ErrInput
	}
	// Every path past this point mutates i2.sym; mark the stage consumed
	// now so a caller that gets an error (e.g. a DH failure mid-flight)
	// cannot retry against partially-mixed symmetric state.
	i2.done = true

	msgE := msg[0:32]
	msgSEnc := msg[32 : 32+32+TagSize]
	msgPEnc := msg[32+32+TagSize:]

	var re [DHLen]byte
	copy(re[:], msgE)
	i2.sym.mixHash(msgE)

	ee, err := dh(i2.e, re)
	if err != nil {
		return 0, Transport{}, err
	}
	i2.sym.mixKey(ee[:])

	se, err := dh(i2.s, re)
	if err != nil {
		return 0, Transport{}, err
	}
	i2.sym.mixKey(se[:])

	var rs [DHLen]byte
	if _, err := i2.sym.decryptAndHash(msgSEnc, rs[:]); err != nil {
		return 0, Transport{}, err
	}

	es, err := dh(i2.e, rs)
	if err != nil {
		return 0, Transport{}, err
	}
	i2.sym.mixKey(es[:])

	payloadOut = payloadOut[:plen]
	n, err := i2.sym.decryptAndHash(msgPEnc, payloadOut)
	if err != nil {
		return 0, Transport{}, err
	}

	c1, c2 := i2.sym.split()

	// Initiator: send=c1, recv=c2.
	return n, Transport{rs: rs, send: c1, recv: c2}, nil
}
