// Package protocol implements the envelope codec: encoding of outbound
// Ready/Intent envelopes and decoding of inbound Render/Patch/Error
// envelopes, all JSON-tagged on a "t" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/projection-ui/host/internal/patch"
)

// Capabilities is the fixed descriptor advertised in every Ready
// envelope. The controller may ignore unknown fields.
type Capabilities struct {
	M1        bool   `json:"m1"`
	Transport string `json:"transport"`
}

// DefaultCapabilities is the capability set this host advertises.
var DefaultCapabilities = Capabilities{M1: true, Transport: "stdio-packet-4"}

// Ready is the outbound envelope announcing (or re-announcing, on
// resync) the host's presence.
type Ready struct {
	Sid          string       `json:"sid"`
	Capabilities Capabilities `json:"capabilities"`
}

// Intent is the outbound envelope carrying a user-originated action.
type Intent struct {
	Sid     string      `json:"sid"`
	ID      uint64      `json:"id"`
	Name    string      `json:"name"`
	Payload patch.Value `json:"payload"`
}

// NewReady builds the Ready envelope for sid.
func NewReady(sid string) Ready {
	return Ready{Sid: sid, Capabilities: DefaultCapabilities}
}

// NewIntent builds the Intent envelope for the given fields.
func NewIntent(sid string, id uint64, name string, payload patch.Value) Intent {
	return Intent{Sid: sid, ID: id, Name: name, Payload: payload}
}

// EncodeReady returns the minimal valid JSON representation of a Ready
// envelope.
func EncodeReady(r Ready) ([]byte, error) {
	return json.Marshal(struct {
		T            string       `json:"t"`
		Sid          string       `json:"sid"`
		Capabilities Capabilities `json:"capabilities"`
	}{T: "ready", Sid: r.Sid, Capabilities: r.Capabilities})
}

// EncodeIntent returns the minimal valid JSON representation of an
// Intent envelope.
func EncodeIntent(i Intent) ([]byte, error) {
	return json.Marshal(struct {
		T       string      `json:"t"`
		Sid     string      `json:"sid"`
		ID      uint64      `json:"id"`
		Name    string      `json:"name"`
		Payload patch.Value `json:"payload"`
	}{T: "intent", Sid: i.Sid, ID: i.ID, Name: i.Name, Payload: i.Payload})
}

// Render is the inbound full-snapshot envelope.
type Render struct {
	Sid string
	Rev uint64
	VM  patch.Value
}

// Patch is the inbound incremental-update envelope.
type Patch struct {
	Sid string
	Rev uint64
	Ack *uint64
	Ops []patch.Op
}

// Error is the inbound diagnostic envelope.
type Error struct {
	Sid     string
	Rev     *uint64
	Code    string
	Message string
}

// Inbound is the decoded union of the three inbound envelope kinds.
// Exactly one of Render, Patch, Err is non-nil.
type Inbound struct {
	Render *Render
	Patch  *Patch
	Err    *Error
}

type rawEnvelope struct {
	T       string          `json:"t"`
	Sid     string          `json:"sid"`
	Rev     *uint64         `json:"rev"`
	VM      json.RawMessage `json:"vm"`
	Ack     *uint64         `json:"ack"`
	Ops     []json.RawMessage `json:"ops"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// Decode dispatches on the "t" discriminator to Render, Patch, or
// Error. Unknown tags, or a malformed body for the matched tag, are
// decode errors.
func Decode(payload []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Inbound{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.T {
	case "render":
		if env.Rev == nil {
			return Inbound{}, fmt.Errorf("protocol: render envelope missing rev")
		}
		var vm patch.Value
		if len(env.VM) > 0 {
			if err := json.Unmarshal(env.VM, &vm); err != nil {
				return Inbound{}, fmt.Errorf("protocol: decode render vm: %w", err)
			}
		} else {
			vm = patch.EmptyObject()
		}
		return Inbound{Render: &Render{Sid: env.Sid, Rev: *env.Rev, VM: vm}}, nil

	case "patch":
		if env.Rev == nil {
			return Inbound{}, fmt.Errorf("protocol: patch envelope missing rev")
		}
		ops, err := patch.DecodePatchOps(env.Ops)
		if err != nil {
			return Inbound{}, fmt.Errorf("protocol: decode patch ops: %w", err)
		}
		return Inbound{Patch: &Patch{Sid: env.Sid, Rev: *env.Rev, Ack: env.Ack, Ops: ops}}, nil

	case "error":
		return Inbound{Err: &Error{Sid: env.Sid, Rev: env.Rev, Code: env.Code, Message: env.Message}}, nil

	default:
		return Inbound{}, fmt.Errorf("protocol: unknown envelope tag %q", env.T)
	}
}

// ResyncCodes are the Error codes that force a resync when encountered
// on the inbound stream.
var ResyncCodes = map[string]bool{
	"decode_error":       true,
	"frame_too_large":    true,
	"invalid_envelope":   true,
	"resync_required":    true,
	"rev_mismatch":       true,
	"patch_apply_error":  true,
}
