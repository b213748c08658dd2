// SPDX-License-Identifier: MPL-2.0
//
// Portions of this file are based on the DH wrapping conventions in
// internal/transport/noise-protocol.go (cedws/noisysockets), itself
// descended from wireguard-go.

package noise

import (
	"crypto/subtle"

	"golang.org/x/crypto/curve25519"
)

// DHLen is the length in bytes of a Curve25519 public key or private scalar.
const DHLen = 32

// PubKey derives the public point for a private scalar by multiplying it
// with the Curve25519 base point. It never fails: clamping is applied by
// curve25519.X25519 internally, so any 32-byte input is a valid scalar.
func PubKey(sk [DHLen]byte) [DHLen]byte {
	var pk [DHLen]byte
	out, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		// curve25519.X25519 only errors for a low-order output, which
		// cannot happen against the canonical base point.
		panic("noise: unreachable base point multiplication failure: " + err.Error())
	}
	copy(pk[:], out)
	return pk
}

// dh performs a variable-base X25519 scalar multiplication and rejects an
// all-zero (small-subgroup/identity) result.
func dh(sk, peerPk [DHLen]byte) ([DHLen]byte, error) {
	var shared [DHLen]byte
	out, err := curve25519.X25519(sk[:], peerPk[:])
	if err != nil {
		return shared, ErrDh
	}
	copy(shared[:], out)
	if isZero(shared[:]) {
		return shared, ErrDh
	}
	return shared, nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}
