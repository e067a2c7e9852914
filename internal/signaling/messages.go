package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropbeam/dropbeam/internal/identity"
)

// Control message types. Any other type is opaque to the server; it is
// relayed when the frame carries a target, dropped otherwise.
const (
	typeDisplayName = "display-name"
	typePeers       = "peers"
	typePeerJoined  = "peer-joined"
	typePeerLeft    = "peer-left"
	typePing        = "ping"
	typePong        = "pong"
	typeDisconnect  = "disconnect"
)

// PeerInfo is the subset of a peer's record disclosed to other members of
// its room.
type PeerInfo struct {
	ID           string              `json:"id"`
	Name         identity.Descriptor `json:"name"`
	RTCSupported bool                `json:"rtcSupported"`
}

type displayNameMessage struct {
	Type    string             `json:"type"`
	Message displayNamePayload `json:"message"`
}

type displayNamePayload struct {
	identity.Descriptor
	PeerID string `json:"peerId"`
}

type peersMessage struct {
	Type  string     `json:"type"`
	Peers []PeerInfo `json:"peers"`
}

type peerJoinedMessage struct {
	Type string   `json:"type"`
	Peer PeerInfo `json:"peer"`
}

type peerLeftMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type pingMessage struct {
	Type string `json:"type"`
}

// frame is one parsed inbound message. Field values are kept as raw JSON so
// relayed payloads pass through the server byte-for-byte.
type frame struct {
	// Kind is the value of the type discriminator.
	Kind string

	// To is the relay target, empty when the frame is not addressed.
	To string

	fields map[string]json.RawMessage
}

var errMissingType = errors.New("frame missing type field")

func parseFrame(data []byte) (frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return frame{}, err
	}
	if fields == nil {
		return frame{}, errors.New("frame is not an object")
	}

	f := frame{fields: fields}

	raw, ok := fields["type"]
	if !ok {
		return frame{}, errMissingType
	}
	if err := json.Unmarshal(raw, &f.Kind); err != nil {
		return frame{}, fmt.Errorf("invalid type field: %w", err)
	}

	if raw, ok := fields["to"]; ok {
		if err := json.Unmarshal(raw, &f.To); err != nil {
			return frame{}, fmt.Errorf("invalid to field: %w", err)
		}
	}

	return f, nil
}

// relayPayload re-encodes the frame for delivery to its target: the routing
// field is consumed and the sender is stamped by the server, overriding
// whatever sender field the client supplied. All other fields pass through
// untouched.
func (f frame) relayPayload(senderID string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.fields))
	for k, v := range f.fields {
		if k == "to" || k == "sender" {
			continue
		}
		out[k] = v
	}

	sender, err := json.Marshal(senderID)
	if err != nil {
		return nil, err
	}
	out["sender"] = sender

	return json.Marshal(out)
}
