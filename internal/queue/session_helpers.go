package queue

import (
	"context"

	"keepkeycore/internal/events"
	"keepkeycore/internal/protocol"
	"keepkeycore/internal/session"
)

func newChangePinSession(w *Worker, remove bool) *session.PinSession {
	_ = remove // both remove and set-new-pin flows enter the same state machine (spec §4.5.1)
	return session.NewPinChangeSession(sessionIDFunc(), w.timeout)
}

func newRecoverySessionFor(w *Worker) *session.RecoverySession {
	return session.NewRecoverySession(sessionIDFunc(), w.CanonicalID, w.timeout)
}

// runInteractiveRecovery is runInteractive's recovery-phrase analogue:
// it loops on CharacterRequest instead of Pin/Passphrase/Button
// prompts, tracking the (word_index, char_index) cursor in
// w.recovery (spec §4.5.3).
func (w *Worker) runInteractiveRecovery(ctx context.Context, initial protocol.Message) (protocol.Message, error) {
	msg, err := w.exchange(ctx, initial)
	if err != nil {
		return nil, err
	}
	lastActionWasDone := false

	for {
		switch m := msg.(type) {
		case protocol.CharacterRequest:
			if result := w.recovery.HandleDeviceReply(m, false); result.Err != nil {
				return nil, result.Err
			}
		case protocol.Failure:
			// Finality can only be inferred from the user's own last
			// action: a mismatch answering "done" is the final
			// character; any other mismatch is mid-phrase and retryable
			// (spec §4.5.3).
			result := w.recovery.HandleDeviceReply(m, lastActionWasDone)
			if result.Err != nil && result.NextState != session.RecoveryAwaitingCharacter {
				return nil, result.Err
			}
			// transient mismatch: fall through to re-prompt the same cursor.
		default:
			w.recovery = nil
			return msg, nil
		}

		w.bus.Publish(events.Event{
			Kind:     events.KindSessionPrompt,
			DeviceID: w.CanonicalID,
			Payload:  events.SessionPromptPayload{SessionID: w.recovery.ID, Prompt: w.recovery.Prompt()},
		})

		reply, err := w.awaitReply(w.recovery.ID)
		if err != nil {
			return nil, err
		}
		action := session.RecoveryAction(reply.RecoveryAction)
		lastActionWasDone = action == session.RecoveryDone
		ack, err := w.recovery.BuildAck(action, reply.RecoveryCharacter)
		if err != nil {
			return nil, err
		}
		msg, err = w.exchange(ctx, ack)
		if err != nil {
			return nil, err
		}
	}
}
