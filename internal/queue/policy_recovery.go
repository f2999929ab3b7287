package queue

import (
	"context"
	"fmt"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/protocol"
)

// recoverFromCorruptedPolicy implements spec §4.4's single automatic
// wipe_device recovery step for a get_features decode failure caused
// by invalid UTF-8 in a policy name. It never retries beyond the one
// wipe attempt.
func (w *Worker) recoverFromCorruptedPolicy(ctx context.Context) (*deviceinfo.FeaturesSnapshot, error) {
	w.log.Printf("corrupted policy detected, issuing automatic wipe_device")

	wipeReply, err := w.exchange(ctx, protocol.WipeDevice{})
	if err != nil {
		return nil, err
	}

	switch m := wipeReply.(type) {
	case protocol.ButtonRequest:
		_ = m
		return nil, &coreerr.ButtonRequiredError{Reason: "confirm wipe on device to recover from corrupted policy data"}
	case protocol.Success:
		msg, err := w.exchange(ctx, protocol.GetFeatures{})
		if err != nil {
			return nil, err
		}
		return w.onFeatures(msg)
	default:
		return nil, fmt.Errorf("queue: unexpected reply %T to recovery wipe_device", wipeReply)
	}
}
