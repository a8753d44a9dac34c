package game

import "time"

// timerHandle is a cancellable one-shot timer. Timers run on the runtime's
// process-wide scheduler and do nothing on fire except enqueue a message
// into the room's mailbox; the controller guards against stale deliveries
// by checking the message's round.
type timerHandle struct {
	t *time.Timer
}

// schedule posts msg to the room's mailbox after d.
func (r *Room) schedule(d time.Duration, msg roomMsg) *timerHandle {
	return &timerHandle{t: time.AfterFunc(d, func() {
		r.mbox.post(msg)
	})}
}

// cancel stops the timer if it has not fired. Idempotent and best-effort:
// a message that already entered the mailbox is not recalled.
func (h *timerHandle) cancel() {
	if h != nil {
		h.t.Stop()
	}
}
