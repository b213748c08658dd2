// SPDX-License-Identifier: MPL-2.0
//
// payload implements the tagged application-message enum that rides as
// the plaintext inside a noise.Transport frame (spec.md §6: "a CBOR-encoded
// application payload layer carrying a tagged enumeration of message
// kinds"). It is grounded on original_source/payload/src/lib.rs's
// `#[serde(tag = "t")] enum Payload`, re-expressed as a Go tagged union
// since Go has no native sum types: a Kind byte selects which concrete
// struct a cbor.RawMessage decodes into.
package payload

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies which variant of Message a frame carries, mirroring the
// "t" tag of the Rust original's serde enum.
type Kind uint8

const (
	KindConnectionAccepted Kind = iota
	KindConnectionDenied
	KindAskAdminAccept
	KindAdminAccept
	KindLogin
	KindAskData
	KindSyncData
	KindSyncRequest
	KindRelay
)

func (k Kind) String() string {
	switch k {
	case KindConnectionAccepted:
		return "connectionAccepted"
	case KindConnectionDenied:
		return "connectionDenied"
	case KindAskAdminAccept:
		return "askAdminAccept"
	case KindAdminAccept:
		return "adminAccept"
	case KindLogin:
		return "login"
	case KindAskData:
		return "askData"
	case KindSyncData:
		return "syncData"
	case KindSyncRequest:
		return "syncRequest"
	case KindRelay:
		return "relay"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// envelope is the on-the-wire CBOR shape: a kind tag plus the kind's own
// encoded body. Keeping the body as cbor.RawMessage lets Decode dispatch
// on Kind before committing to a concrete Go type.
type envelope struct {
	Kind Kind            `cbor:"t"`
	Body cbor.RawMessage `cbor:"b"`
}

// AskAdminAcceptMsg asks an administrator to approve a new peer, carrying
// the requesting peer's Noise static public key.
type AskAdminAcceptMsg struct {
	Peer [32]byte `cbor:"peer"`
}

// AdminAcceptMsg is the administrator's reply approving a peer.
type AdminAcceptMsg struct {
	Peer [32]byte `cbor:"peer"`
}

// LoginMsg authenticates against the admin password, mirroring the Rust
// original's optional "login" feature.
type LoginMsg struct {
	AdminPassword string `cbor:"admin_pwd"`
}

// Data is a two-level keyed value map, the CBOR analogue of the original's
// BTreeMap<Vec<u8>, BTreeMap<Vec<u8>, Value>>.
type Data map[string]map[string]cbor.RawMessage

// SyncDataMsg pushes a Data snapshot to the peer.
type SyncDataMsg struct {
	Data Data `cbor:"data"`
}

// SyncRequestMsg asks the peer to push a Data snapshot matching the given
// filter back to the sender.
type SyncRequestMsg struct {
	Data Data `cbor:"data"`
}

// RelayMsg asks the receiving peer to forward dat to dest on the sender's
// behalf, identifying the original sender as src.
type RelayMsg struct {
	Src  [32]byte `cbor:"src"`
	Dest [32]byte `cbor:"dest"`
	Dat  []byte   `cbor:"dat"`
}

// Message is the decoded form of one application payload: Kind says which
// of the optional fields is populated.
type Message struct {
	Kind           Kind
	AskAdminAccept *AskAdminAcceptMsg
	AdminAccept    *AdminAcceptMsg
	Login          *LoginMsg
	SyncData       *SyncDataMsg
	SyncRequest    *SyncRequestMsg
	Relay          *RelayMsg
}

func emptyMessage(kind Kind) Message { return Message{Kind: kind} }

// ConnectionAccepted builds the zero-payload "connection accepted" message.
func ConnectionAccepted() Message { return emptyMessage(KindConnectionAccepted) }

// ConnectionDenied builds the zero-payload "connection denied" message.
func ConnectionDenied() Message { return emptyMessage(KindConnectionDenied) }

// AskData builds the zero-payload "ask for a data sync" message.
func AskData() Message { return emptyMessage(KindAskData) }

// Encode serialises m to its CBOR wire form.
func Encode(m Message) ([]byte, error) {
	var body interface{}
	switch m.Kind {
	case KindConnectionAccepted, KindConnectionDenied, KindAskData:
		body = struct{}{}
	case KindAskAdminAccept:
		body = m.AskAdminAccept
	case KindAdminAccept:
		body = m.AdminAccept
	case KindLogin:
		body = m.Login
	case KindSyncData:
		body = m.SyncData
	case KindSyncRequest:
		body = m.SyncRequest
	case KindRelay:
		body = m.Relay
	default:
		return nil, fmt.Errorf("payload: unknown kind %v", m.Kind)
	}

	encodedBody, err := cbor.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payload: encode body: %w", err)
	}
	return cbor.Marshal(envelope{Kind: m.Kind, Body: encodedBody})
}

// Decode parses a CBOR-encoded payload frame into a Message, dispatching
// on the envelope's kind tag before decoding the kind-specific body.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := cbor.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("payload: decode envelope: %w", err)
	}

	m := Message{Kind: env.Kind}
	switch env.Kind {
	case KindConnectionAccepted, KindConnectionDenied, KindAskData:
		// No body.
	case KindAskAdminAccept:
		m.AskAdminAccept = new(AskAdminAcceptMsg)
		return m, decodeBody(env.Body, m.AskAdminAccept)
	case KindAdminAccept:
		m.AdminAccept = new(AdminAcceptMsg)
		return m, decodeBody(env.Body, m.AdminAccept)
	case KindLogin:
		m.Login = new(LoginMsg)
		return m, decodeBody(env.Body, m.Login)
	case KindSyncData:
		m.SyncData = new(SyncDataMsg)
		return m, decodeBody(env.Body, m.SyncData)
	case KindSyncRequest:
		m.SyncRequest = new(SyncRequestMsg)
		return m, decodeBody(env.Body, m.SyncRequest)
	case KindRelay:
		m.Relay = new(RelayMsg)
		return m, decodeBody(env.Body, m.Relay)
	default:
		return Message{}, fmt.Errorf("payload: unknown kind %v", env.Kind)
	}
	return m, nil
}

func decodeBody(raw cbor.RawMessage, v interface{}) error {
	if err := cbor.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("payload: decode body: %w", err)
	}
	return nil
}

// NewAskAdminAccept builds an AskAdminAccept message for the given peer.
func NewAskAdminAccept(peer [32]byte) Message {
	return Message{Kind: KindAskAdminAccept, AskAdminAccept: &AskAdminAcceptMsg{Peer: peer}}
}

// NewAdminAccept builds an AdminAccept message for the given peer.
func NewAdminAccept(peer [32]byte) Message {
	return Message{Kind: KindAdminAccept, AdminAccept: &AdminAcceptMsg{Peer: peer}}
}

// NewLogin builds a Login message carrying the admin password.
func NewLogin(adminPassword string) Message {
	return Message{Kind: KindLogin, Login: &LoginMsg{AdminPassword: adminPassword}}
}

// NewSyncData builds a SyncData message carrying a Data snapshot.
func NewSyncData(data Data) Message {
	return Message{Kind: KindSyncData, SyncData: &SyncDataMsg{Data: data}}
}

// NewSyncRequest builds a SyncRequest message carrying a Data filter.
func NewSyncRequest(data Data) Message {
	return Message{Kind: KindSyncRequest, SyncRequest: &SyncRequestMsg{Data: data}}
}

// NewRelay builds a Relay message asking the receiving peer to forward dat
// from src to dest.
func NewRelay(src, dest [32]byte, dat []byte) Message {
	return Message{Kind: KindRelay, Relay: &RelayMsg{Src: src, Dest: dest, Dat: dat}}
}
