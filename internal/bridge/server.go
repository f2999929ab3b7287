package bridge

import (
	"context"
	"fmt"

	"keepkeycore/internal/events"
	"keepkeycore/internal/queue"
	"keepkeycore/internal/registry"
)

// Server implements Service against a live Registry, the gRPC
// equivalent of the worker-channel API a same-process caller gets for
// free (spec §6 Queue API). It is optional: nothing in the core
// requires a daemon process, but a UI that wants process isolation
// from direct USB/HID access (matching the teacher's hasher-host /
// hasher-server split) gets it here.
type Server struct {
	registry *registry.Registry
	bus      *events.Bus
}

// NewServer wraps reg for gRPC exposure. bus is the same bus reg was
// constructed with, passed separately because Registry doesn't expose
// its bus (workers only ever publish, never need to read it back).
func NewServer(reg *registry.Registry, bus *events.Bus) *Server {
	return &Server{registry: reg, bus: bus}
}

func (s *Server) ListDevices(ctx context.Context, req *DeviceListRequest) (*DeviceListResponse, error) {
	return &DeviceListResponse{CanonicalIDs: s.registry.CanonicalIDs()}, nil
}

func (s *Server) worker(canonicalID string) (*queue.Worker, error) {
	w, ok := s.registry.Get(canonicalID)
	if !ok {
		return nil, fmt.Errorf("bridge: no device %q", canonicalID)
	}
	return w, nil
}

func (s *Server) GetFeatures(ctx context.Context, req *GetFeaturesRequest) (*GetFeaturesResponse, error) {
	w, err := s.worker(req.CanonicalID)
	if err != nil {
		return &GetFeaturesResponse{Err: toErrString(err)}, nil
	}
	resp := submitAndWait(w, &queue.Request{Op: queue.OpGetFeatures}, false)
	return &GetFeaturesResponse{Features: resp.Features, Err: toErrString(resp.Err)}, nil
}

func (s *Server) GetAddress(ctx context.Context, req *GetAddressRequest) (*GetAddressResponse, error) {
	w, err := s.worker(req.CanonicalID)
	if err != nil {
		return &GetAddressResponse{Err: toErrString(err)}, nil
	}
	resp := submitAndWait(w, &queue.Request{
		Op: queue.OpGetAddress,
		GetAddress: &queue.GetAddressInput{
			AddressN:    req.AddressN,
			CoinName:    req.CoinName,
			ScriptType:  req.ScriptType,
			ShowDisplay: req.ShowDisplay,
		},
	}, false)
	return &GetAddressResponse{Address: resp.Address, Err: toErrString(resp.Err)}, nil
}

func (s *Server) SessionReply(ctx context.Context, req *SessionReplyRequest) (*Ack, error) {
	w, err := s.worker(req.CanonicalID)
	if err != nil {
		return &Ack{Err: toErrString(err)}, nil
	}
	resp := submitAndWait(w, &queue.Request{
		Op: queue.OpSessionReply,
		SessionReply: &queue.SessionReplyInput{
			SessionID:         req.SessionID,
			PinPositions:      req.PinPositions,
			Passphrase:        req.Passphrase,
			ButtonConfirmed:   req.ButtonConfirmed,
			RecoveryAction:    req.RecoveryAction,
			RecoveryCharacter: req.RecoveryCharacter,
		},
	}, true)
	return &Ack{Err: toErrString(resp.Err)}, nil
}

func (s *Server) SubscribeEvents(req *EventSubscribeRequest, stream EventStream) error {
	sub := s.bus.Subscribe(64)
	defer sub.Unsubscribe()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			wire := toWireEvent(ev)
			if err := stream.Send(&wire); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}
