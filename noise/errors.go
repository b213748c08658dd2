// SPDX-License-Identifier: MPL-2.0

package noise

import "errors"

// The core's error taxonomy has exactly three members. Buffer-size,
// AEAD-verification and DH failures are reported as one of these,
// returned unwrapped so callers can compare with ==. Calling a handshake
// stage that was already consumed returns a separate "already consumed"
// error that is none of the three.
var (
	// ErrInput is returned when a caller-supplied buffer is smaller than
	// the minimum required by the operation, or a decoded length is out
	// of range. No cryptographic state is advanced.
	ErrInput = errors.New("noise: buffer too small")

	// ErrDecrypt is returned when AEAD tag verification fails, during the
	// handshake's second flight or during a Transport read. The channel
	// is fatally compromised or desynchronised and must be torn down.
	ErrDecrypt = errors.New("noise: decryption failed")

	// ErrDh is returned when an X25519 operation produces the all-zero
	// shared secret (small-subgroup/identity guard).
	ErrDh = errors.New("noise: invalid dh result")
)
