package bridge

import (
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/queue"
)

// DeviceListRequest takes no fields; kept as a struct so the unary
// call shape is uniform across every method the bridge exposes.
type DeviceListRequest struct{}

// DeviceListResponse enumerates the canonical ids the daemon currently
// tracks (backs a UI's device picker).
type DeviceListResponse struct {
	CanonicalIDs []string `json:"canonical_ids"`
}

// GetFeaturesRequest names the target device by canonical id.
type GetFeaturesRequest struct {
	CanonicalID string `json:"canonical_id"`
}

// GetFeaturesResponse carries the snapshot or an error.
type GetFeaturesResponse struct {
	Features *deviceinfo.FeaturesSnapshot `json:"features,omitempty"`
	Err      *errString                   `json:"err,omitempty"`
}

// GetAddressRequest mirrors queue.GetAddressInput plus a target device.
type GetAddressRequest struct {
	CanonicalID string   `json:"canonical_id"`
	AddressN    []uint32 `json:"address_n"`
	CoinName    string   `json:"coin_name"`
	ScriptType  int32    `json:"script_type"`
	ShowDisplay bool     `json:"show_display"`
}

// GetAddressResponse carries the address or an error.
type GetAddressResponse struct {
	Address string     `json:"address,omitempty"`
	Err     *errString `json:"err,omitempty"`
}

// SessionReplyRequest forwards a user's answer to an outstanding
// prompt (spec §4.4 session-reply operations), mirroring
// queue.SessionReplyInput.
type SessionReplyRequest struct {
	CanonicalID       string `json:"canonical_id"`
	SessionID         string `json:"session_id"`
	PinPositions      []int  `json:"pin_positions,omitempty"`
	Passphrase        string `json:"passphrase,omitempty"`
	ButtonConfirmed   bool   `json:"button_confirmed,omitempty"`
	RecoveryAction    int    `json:"recovery_action,omitempty"`
	RecoveryCharacter string `json:"recovery_character,omitempty"`
}

// Ack is returned by calls with no interesting payload beyond success/failure.
type Ack struct {
	Err *errString `json:"err,omitempty"`
}

// EventSubscribeRequest takes no fields today; present for forward
// compatibility with filtering by device id.
type EventSubscribeRequest struct{}

// WireEvent is the JSON-codec-friendly projection of events.Event:
// Payload is flattened to whatever fields are non-empty for the kind,
// since events.Event.Payload is `interface{}` and the concrete payload
// structs aren't proto messages either.
type WireEvent struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id"`

	Ready   *bool  `json:"ready,omitempty"`
	Message string `json:"message,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	Percent   int    `json:"percent,omitempty"`

	OldCanonicalID string `json:"old_canonical_id,omitempty"`
	NewCanonicalID string `json:"new_canonical_id,omitempty"`
}

func toWireEvent(ev events.Event) WireEvent {
	w := WireEvent{Kind: string(ev.Kind), DeviceID: ev.DeviceID}
	switch p := ev.Payload.(type) {
	case events.DeviceStateChangedPayload:
		ready := p.Ready
		w.Ready = &ready
		w.Message = p.Message
	case events.SessionPromptPayload:
		w.SessionID = p.SessionID
	case events.SessionProgressPayload:
		w.SessionID = p.SessionID
		w.Percent = p.Percent
	case events.SessionCompletedPayload:
		w.SessionID = p.SessionID
	case events.RecoveryReconnectPayload:
		w.OldCanonicalID = p.OldCanonicalID
		w.NewCanonicalID = p.NewCanonicalID
	}
	return w
}

// submitAndWait is the shared unary request/reply round every RPC
// handler uses to talk to a worker: build a queue.Request, submit it,
// and block on its reply channel.
func submitAndWait(w *queue.Worker, req *queue.Request, useReplyLane bool) queue.Response {
	req.ReplyCh = make(chan queue.Response, 1)
	if useReplyLane {
		w.SubmitReply(req)
	} else {
		w.Submit(req)
	}
	return <-req.ReplyCh
}
