package game

// mailbox is an unbounded FIFO queue of controller messages. Posting never
// blocks the sender; a pump goroutine shuttles messages from the in channel
// to the out channel through an in-memory queue.
type mailbox struct {
	in  chan roomMsg
	out chan roomMsg
}

func newMailbox() *mailbox {
	m := &mailbox{
		in:  make(chan roomMsg),
		out: make(chan roomMsg),
	}
	go m.pump()
	return m
}

func (m *mailbox) pump() {
	var queue []roomMsg
	for {
		if len(queue) == 0 {
			msg, ok := <-m.in
			if !ok {
				close(m.out)
				return
			}
			queue = append(queue, msg)
			continue
		}
		select {
		case msg, ok := <-m.in:
			if !ok {
				// Drain what is already queued, then stop.
				for _, q := range queue {
					m.out <- q
				}
				close(m.out)
				return
			}
			queue = append(queue, msg)
		case m.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

// post enqueues one message. It reports false once the mailbox is closed.
func (m *mailbox) post(msg roomMsg) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m.in <- msg
	return true
}

// close stops accepting new messages. Queued messages are still delivered.
func (m *mailbox) close() {
	defer func() { _ = recover() }()
	close(m.in)
}
