package queue

import (
	"context"
	"fmt"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/protocol"
	"keepkeycore/internal/session"
	"keepkeycore/internal/status"
)

func (w *Worker) doGetFeatures(ctx context.Context) (*deviceinfo.FeaturesSnapshot, error) {
	typeCode, body := protocol.Encode(protocol.GetFeatures{})
	rtc, rbody, xerr := w.carrier.Exchange(ctx, typeCode, body)
	if xerr != nil {
		return nil, xerr
	}

	msg, err := protocol.Decode(rtc, rbody)
	if err == nil {
		return w.onFeatures(msg)
	}

	var cp *protocol.CorruptedPolicyError
	if asCorruptedPolicy(err, &cp) {
		return w.recoverFromCorruptedPolicy(ctx)
	}

	// Any other strict-decode failure (most commonly truncation) falls
	// back to the forgiving decoder before giving up (spec §4.1,
	// §7 decode.partial_ok): a partial snapshot logged is better than a
	// hard failure on a device that otherwise answered.
	if snap, ferr := protocol.DecodeFeaturesForgiving(rbody); ferr == nil {
		w.log.Printf("%s: strict decode failed (%v), recovered partial snapshot", coreerr.ErrDecodePartialOK, err)
		return w.publishFeatures(snap)
	}
	return nil, err
}

func (w *Worker) onFeatures(msg protocol.Message) (*deviceinfo.FeaturesSnapshot, error) {
	f, ok := msg.(protocol.Features)
	if !ok {
		return nil, fmt.Errorf("queue: get_features returned unexpected message type")
	}
	return w.publishFeatures(f.ToSnapshot())
}

func (w *Worker) publishFeatures(snap deviceinfo.FeaturesSnapshot) (*deviceinfo.FeaturesSnapshot, error) {
	prior := status.Evaluate(snap, w.thresholds)
	w.bus.Publish(events.Event{
		Kind:     events.KindDeviceStateChanged,
		DeviceID: w.CanonicalID,
		Payload:  events.DeviceStateChangedPayload{Ready: prior.Ready, Message: prior.Message},
	})
	return &snap, nil
}

func (w *Worker) doGetAddress(ctx context.Context, in *GetAddressInput) (string, error) {
	if in == nil {
		return "", fmt.Errorf("queue: get_address requires input")
	}
	msg, err := w.runInteractive(ctx, protocol.GetAddress{
		AddressN:    in.AddressN,
		CoinName:    in.CoinName,
		ScriptType:  in.ScriptType,
		ShowDisplay: in.ShowDisplay,
	})
	if err != nil {
		return "", err
	}
	addr, ok := msg.(protocol.Address)
	if !ok {
		return "", unexpectedTerminal(msg)
	}
	return addr.Address, nil
}

func (w *Worker) doGetXpub(ctx context.Context, in *GetAddressInput) (string, error) {
	if in == nil {
		return "", fmt.Errorf("queue: get_xpub requires input")
	}
	msg, err := w.runInteractive(ctx, protocol.GetPublicKey{AddressN: in.AddressN})
	if err != nil {
		return "", err
	}
	pk, ok := msg.(protocol.PublicKey)
	if !ok {
		return "", unexpectedTerminal(msg)
	}
	return pk.Xpub, nil
}

func (w *Worker) doSignTx(ctx context.Context, in *SignTxInput) ([]byte, error) {
	if in == nil {
		return nil, fmt.Errorf("queue: sign_tx requires input")
	}
	// The transaction template is forwarded as a pre-encoded FirmwareUpload-
	// style opaque payload; this core does not define a coin-signing
	// message set (spec Non-goals exclude wallet-specific business logic).
	msg, err := w.runInteractive(ctx, protocol.FirmwareUpload{Payload: in.Template})
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case protocol.Success:
		return []byte(m.Message), nil
	default:
		return nil, unexpectedTerminal(msg)
	}
}

func (w *Worker) doChangePin(ctx context.Context, in *ChangePinInput) error {
	if in == nil {
		return fmt.Errorf("queue: change_pin requires input")
	}
	// A PIN session already active here means a prior operation's dialog
	// never reached a terminal state (e.g. it timed out mid-prompt) and
	// was left dangling. If the device treats this start as a duplicate
	// of that one, its Failure(Unknown message) means the first start
	// already succeeded, not that this one failed (spec §4.5.1 invariant 2).
	alreadyActive := w.pin != nil && !w.pin.State().Terminal()
	w.pin = newChangePinSession(w, in.Remove)
	msg, err := w.runInteractive(ctx, protocol.ChangePin{Remove: in.Remove})
	if err != nil {
		return err
	}
	if f, ok := msg.(protocol.Failure); ok && session.IsDuplicateStartFailure(f, alreadyActive) {
		return nil
	}
	return expectSuccess(msg)
}

func (w *Worker) doRecovery(ctx context.Context, in *RecoveryInput) error {
	if in == nil {
		return fmt.Errorf("queue: recovery requires input")
	}
	w.recovery = newRecoverySessionFor(w)
	msg, err := w.runInteractiveRecovery(ctx, protocol.RecoveryDevice{
		WordCount:            in.WordCount,
		PassphraseProtection: in.PassphraseProtection,
		PinProtection:        in.PinProtection,
		Label:                in.Label,
	})
	if err != nil {
		return err
	}
	return expectSuccess(msg)
}

func (w *Worker) doWipe(ctx context.Context) error {
	msg, err := w.runInteractive(ctx, protocol.WipeDevice{})
	if err != nil {
		return err
	}
	return expectSuccess(msg)
}

func expectSuccess(msg protocol.Message) error {
	if _, ok := msg.(protocol.Success); ok {
		return nil
	}
	return unexpectedTerminal(msg)
}

func unexpectedTerminal(msg protocol.Message) error {
	if f, ok := msg.(protocol.Failure); ok {
		return fmt.Errorf("device failure %d: %s", f.Code, f.Message)
	}
	return fmt.Errorf("queue: unexpected terminal message %T", msg)
}

func asCorruptedPolicy(err error, target **protocol.CorruptedPolicyError) bool {
	cp, ok := err.(*protocol.CorruptedPolicyError)
	if ok {
		*target = cp
	}
	return ok
}
