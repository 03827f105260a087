package output

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced time source for deterministic
// DelayBuffer tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time  { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDelayBufferPassthroughWhenInactive(t *testing.T) {
	var got []*Packet
	d := NewDelayBuffer(DelaySettings{Seconds: 5}, func(p *Packet) { got = append(got, p) })

	pkt := &Packet{Type: PacketVideo}
	d.Push(pkt)
	if len(got) != 1 {
		t.Fatalf("expected immediate passthrough while inactive, got %d emissions", len(got))
	}
}

func TestDelayBufferHoldsUntilAged(t *testing.T) {
	var got []*Packet
	d := NewDelayBuffer(DelaySettings{Seconds: 10}, func(p *Packet) { got = append(got, p) })
	d.SetActive(true)

	clock := &fakeClock{t: time.Unix(0, 0)}
	d.SetClock(clock.now)

	p1 := &Packet{Type: PacketVideo, DTS: 1}
	d.Push(p1)
	if len(got) != 0 {
		t.Fatal("packet emitted before the delay window elapsed")
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}

	clock.advance(5 * time.Second)
	p2 := &Packet{Type: PacketVideo, DTS: 2}
	d.Push(p2)
	if len(got) != 0 {
		t.Fatal("packet emitted before the delay window elapsed")
	}

	clock.advance(6 * time.Second) // p1 inserted at t=0 is now 11s old
	p3 := &Packet{Type: PacketVideo, DTS: 3}
	d.Push(p3)
	if len(got) != 1 || got[0] != p1 {
		t.Fatalf("expected only p1 to drain once it aged past the delay window, got %d packets", len(got))
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (p2, p3 still buffered)", d.Len())
	}
}

// TestDelayBufferPreserveOnDisconnect checks that with
// PRESERVE_ON_DISCONNECT set, buffered packets survive OnDisconnect and
// still drain once they age out.
func TestDelayBufferPreserveOnDisconnect(t *testing.T) {
	var got []*Packet
	d := NewDelayBuffer(DelaySettings{Seconds: 10, Preserve: true}, func(p *Packet) { got = append(got, p) })
	d.SetActive(true)

	clock := &fakeClock{t: time.Unix(0, 0)}
	d.SetClock(clock.now)

	d.Push(&Packet{Type: PacketVideo, DTS: 1})
	d.OnDisconnect()
	if d.Len() != 1 {
		t.Fatal("PRESERVE_ON_DISCONNECT must keep buffered packets across a disconnect")
	}

	clock.advance(11 * time.Second)
	d.Push(&Packet{Type: PacketVideo, DTS: 2})
	if len(got) != 1 {
		t.Fatalf("expected the preserved packet to eventually drain, got %d emissions", len(got))
	}
}

func TestDelayBufferDropsOnDisconnectWithoutPreserve(t *testing.T) {
	d := NewDelayBuffer(DelaySettings{Seconds: 10, Preserve: false}, func(*Packet) {})
	d.SetActive(true)
	d.Push(&Packet{Type: PacketVideo})
	if d.Len() != 1 {
		t.Fatal("setup: packet should be buffered before disconnect")
	}
	d.OnDisconnect()
	if d.Len() != 0 {
		t.Fatal("without PRESERVE_ON_DISCONNECT, OnDisconnect must drop buffered packets")
	}
}

func TestDelayBufferFlush(t *testing.T) {
	var got []*Packet
	d := NewDelayBuffer(DelaySettings{Seconds: 100}, func(p *Packet) { got = append(got, p) })
	d.SetActive(true)
	d.Push(&Packet{Type: PacketVideo, DTS: 1})
	d.Push(&Packet{Type: PacketAudio, DTS: 2})

	d.Flush()
	if len(got) != 2 {
		t.Fatalf("Flush delivered %d packets, want 2", len(got))
	}
	if d.Len() != 0 {
		t.Fatal("Flush must empty the buffer")
	}
}
