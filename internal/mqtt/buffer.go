package mqtt

import "log"

// queuedMsg is a serialized MQTT message waiting for the broker to come back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while disconnected, oldest first.
// When full, the oldest message is overwritten. Not safe for concurrent
// use; the caller must synchronize.
type outbox struct {
	slots   []queuedMsg
	next    int // slot for the next message
	queued  int
	dropped int // messages overwritten since the last flush
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]queuedMsg, capacity)}
}

func (o *outbox) add(msg queuedMsg) {
	if o.queued == len(o.slots) {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.slots))
		}
		o.dropped++
	} else {
		o.queued++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % len(o.slots)
}

// flush empties the outbox and returns its messages in publish order.
func (o *outbox) flush() []queuedMsg {
	if o.queued == 0 {
		return nil
	}

	out := make([]queuedMsg, o.queued)
	first := (o.next - o.queued + len(o.slots)) % len(o.slots)
	for i := range out {
		out[i] = o.slots[(first+i)%len(o.slots)]
	}

	if o.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while offline", o.dropped)
	}
	o.queued = 0
	o.next = 0
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return o.queued
}
