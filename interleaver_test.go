package output

import "testing"

func mkPkt(typ PacketType, tb Timebase, tick int64, keyframe bool) *Packet {
	p := &Packet{Type: typ, TB: tb, PTS: tick, Keyframe: keyframe}
	p.SetDTS(tick)
	return p
}

// TestInterleaverBasicAlign checks that video and audio arriving close
// together in time survive the initialization diff check unscathed and
// get rebased so the buffer's first packets land at DTS 0.
func TestInterleaverBasicAlign(t *testing.T) {
	var emitted []*Packet
	il := NewInterleaver(nil, nil, func(p *Packet) { emitted = append(emitted, p) }, nil)

	videoTB := Timebase{Num: 1, Den: 30}   // FrameUsec = 33333
	audioTB := Timebase{Num: 1, Den: 1000} // 1 tick = 1ms

	v0 := mkPkt(PacketVideo, videoTB, 10, true) // DTSUsec 333333
	a0 := mkPkt(PacketAudio, audioTB, 300, false)
	v1 := mkPkt(PacketVideo, videoTB, 11, false)
	a1 := mkPkt(PacketAudio, audioTB, 330, false)
	v2 := mkPkt(PacketVideo, videoTB, 12, false)
	a2 := mkPkt(PacketAudio, audioTB, 360, false)
	a3 := mkPkt(PacketAudio, audioTB, 390, false)

	for _, p := range []*Packet{v0, a0, v1, a1, v2, a2, a3} {
		il.Push(p)
	}

	if !il.initialized {
		t.Fatal("interleaver never initialized")
	}
	if il.videoOffset != 10 {
		t.Errorf("videoOffset = %d, want 10", il.videoOffset)
	}
	if il.audioOffsets[0] != 300 {
		t.Errorf("audioOffsets[0] = %d, want 300", il.audioOffsets[0])
	}

	if len(emitted) == 0 {
		t.Fatal("expected at least one packet emitted once both streams aligned")
	}
	if emitted[0].DTS != 0 {
		t.Errorf("first emitted packet DTS = %d, want 0", emitted[0].DTS)
	}
}

// TestInterleaverPrematureAudioDiscard checks that audio arriving far
// ahead of the first usable video is discarded at initialization rather
// than held forever.
func TestInterleaverPrematureAudioDiscard(t *testing.T) {
	il := NewInterleaver(nil, nil, func(*Packet) {}, nil)

	videoTB := Timebase{Num: 1, Den: 30}   // FrameUsec = 33333
	audioTB := Timebase{Num: 1, Den: 1000} // 1 tick = 1ms -> 1000usec

	aEarly1 := mkPkt(PacketAudio, audioTB, -200, false) // -200000 usec
	aEarly2 := mkPkt(PacketAudio, audioTB, -100, false) // -100000 usec
	vGate := mkPkt(PacketVideo, videoTB, 0, true)       // 0 usec, keyframe so it survives the gate
	aSurvivor := mkPkt(PacketAudio, audioTB, 0, false)  // 0 usec
	vSurvivor := mkPkt(PacketVideo, videoTB, 1, true)    // 33333 usec

	for _, p := range []*Packet{aEarly1, aEarly2, vGate, aSurvivor, vSurvivor} {
		il.Push(p)
	}

	if !il.initialized {
		t.Fatal("interleaver failed to initialize after the discard-and-retry cycle")
	}
	if len(il.packets) != 2 {
		t.Fatalf("packets remaining = %d, want 2 (the premature audio must have been discarded)", len(il.packets))
	}
	for _, p := range il.packets {
		if p.DTSUsec == -200000 || p.DTSUsec == -100000 {
			t.Fatal("a discarded premature audio packet survived into the final buffer")
		}
	}
}

// TestInterleaverKeyframeGate checks that leading non-keyframe video
// (and audio buffered ahead of it) is dropped; emission only starts
// once a keyframe establishes the video stream.
func TestInterleaverKeyframeGate(t *testing.T) {
	var emitted []*Packet
	il := NewInterleaver(nil, nil, func(p *Packet) { emitted = append(emitted, p) }, nil)

	videoTB := Timebase{Num: 1, Den: 30}
	audioTB := Timebase{Num: 1, Den: 1000}

	aBeforeGate := mkPkt(PacketAudio, audioTB, 10, false) // 10000 usec, dropped by the P1 gate
	p0 := mkPkt(PacketVideo, videoTB, 0, false)            // non-keyframe, dropped by gate
	p1 := mkPkt(PacketVideo, videoTB, 1, false)            // non-keyframe, dropped by gate
	aKept := mkPkt(PacketAudio, audioTB, 40, false)        // 40000 usec, survives
	keyframe := mkPkt(PacketVideo, videoTB, 2, true)       // 66666 usec, establishes the stream
	p2 := mkPkt(PacketVideo, videoTB, 3, false)            // 100000 usec, arrives after init
	aTrailing := mkPkt(PacketAudio, audioTB, 50, false)    // later audio that lets the keyframe become safe to emit

	for _, p := range []*Packet{aBeforeGate, p0, p1, aKept, keyframe, p2, aTrailing} {
		il.Push(p)
	}

	if len(emitted) == 0 {
		t.Fatal("expected emission once the keyframe established the stream")
	}
	if emitted[0].Type != PacketVideo || !emitted[0].Keyframe {
		t.Fatalf("first emitted packet = %+v, want the keyframe", emitted[0])
	}
}
