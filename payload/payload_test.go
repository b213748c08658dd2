// SPDX-License-Identifier: MPL-2.0

package payload

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEmptyKinds(t *testing.T) {
	for _, m := range []Message{ConnectionAccepted(), ConnectionDenied(), AskData()} {
		raw, err := Encode(m)
		require.NoError(t, err)

		got, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, m.Kind, got.Kind)
	}
}

func TestEncodeDecodeAskAdminAccept(t *testing.T) {
	var peer [32]byte
	peer[0] = 0xAB

	raw, err := Encode(NewAskAdminAccept(peer))
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindAskAdminAccept, got.Kind)
	require.NotNil(t, got.AskAdminAccept)
	require.Equal(t, peer, got.AskAdminAccept.Peer)
}

func TestEncodeDecodeRelay(t *testing.T) {
	var src, dest [32]byte
	src[0] = 1
	dest[0] = 2
	dat := []byte("forwarded bytes")

	raw, err := Encode(NewRelay(src, dest, dat))
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindRelay, got.Kind)
	require.Equal(t, src, got.Relay.Src)
	require.Equal(t, dest, got.Relay.Dest)
	require.Equal(t, dat, got.Relay.Dat)
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	corrupted, err := cbor.Marshal(envelope{Kind: Kind(99), Body: cbor.RawMessage{0xf6}})
	require.NoError(t, err)

	_, err = Decode(corrupted)
	require.Error(t, err)
}
