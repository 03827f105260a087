package output

import (
	"sync"
	"time"
)

// delayedPacket pairs a packet with its buffer insertion time.
type delayedPacket struct {
	pkt       *Packet
	insertedAt time.Time
}

// DelayBuffer holds encoded packets for N seconds before forwarding them
// downstream. It exposes the same "encoded packet in" shape as a Sink,
// so the Data-Capture Hookup can wrap the terminal callback in it
// transparently.
type DelayBuffer struct {
	mu       sync.Mutex
	delay    time.Duration
	preserve bool
	active   bool
	items    []delayedPacket
	now      func() time.Time

	emit PacketHandler
}

// NewDelayBuffer constructs a DelayBuffer forwarding to emit once items
// age past delay.Seconds. now defaults to time.Now; tests may override it
// to simulate the passage of time without sleeping.
func NewDelayBuffer(cfg DelaySettings, emit PacketHandler) *DelayBuffer {
	return &DelayBuffer{
		delay:    time.Duration(cfg.Seconds) * time.Second,
		preserve: cfg.Preserve,
		emit:     emit,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for deterministic tests.
func (d *DelayBuffer) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// SetActive toggles whether the buffer is currently delaying delivery;
// it starts inactive until SetActive(true) is called.
func (d *DelayBuffer) SetActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

// Active reports whether the buffer is currently delaying delivery.
func (d *DelayBuffer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Push enqueues a packet (the "encoded packet in" interface). If the
// buffer is inactive, packets pass straight through.
func (d *DelayBuffer) Push(pkt *Packet) {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		if d.emit != nil {
			d.emit(pkt)
		}
		return
	}
	d.items = append(d.items, delayedPacket{pkt: pkt, insertedAt: d.now()})
	ready := d.drainReadyLocked()
	d.mu.Unlock()
	for _, p := range ready {
		if d.emit != nil {
			d.emit(p)
		}
	}
}

// Flush forces delivery of every buffered packet regardless of age, used
// at teardown once encoders have stopped, so buffered packets still reach
// the sink before it stops.
func (d *DelayBuffer) Flush() {
	d.mu.Lock()
	items := d.items
	d.items = nil
	d.mu.Unlock()
	for _, it := range items {
		if d.emit != nil {
			d.emit(it.pkt)
		}
	}
}

// drainReadyLocked pops every packet whose insertion is older than delay.
func (d *DelayBuffer) drainReadyLocked() []*Packet {
	var ready []*Packet
	cutoff := d.now().Add(-d.delay)
	i := 0
	for ; i < len(d.items); i++ {
		if d.items[i].insertedAt.After(cutoff) {
			break
		}
		ready = append(ready, d.items[i].pkt)
	}
	d.items = d.items[i:]
	return ready
}

// OnDisconnect handles a reconnect: preserve buffered contents if
// PRESERVE_ON_DISCONNECT is set, else flush (drop) them.
func (d *DelayBuffer) OnDisconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.preserve {
		d.items = nil
	}
}

// Len reports the number of currently buffered packets (diagnostics/tests).
func (d *DelayBuffer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
