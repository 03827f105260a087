package output

import "fmt"

// PacketType distinguishes video from audio encoder packets.
type PacketType int

const (
	PacketVideo PacketType = iota
	PacketAudio
)

func (t PacketType) String() string {
	switch t {
	case PacketVideo:
		return "video"
	case PacketAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// MaxMixes is the maximum number of audio encoders an Output may bind.
const MaxMixes = 8

// Timebase is a rational mapping a packet timestamp to seconds.
type Timebase struct {
	Num int64
	Den int64
}

// ToUsec converts a timestamp in this timebase to microseconds.
func (tb Timebase) ToUsec(ts int64) int64 {
	if tb.Den == 0 {
		return 0
	}
	return ts * 1_000_000 * tb.Num / tb.Den
}

// FrameUsec returns the duration of one tick of this timebase, in
// microseconds.
func (tb Timebase) FrameUsec() int64 {
	if tb.Den == 0 {
		return 0
	}
	return tb.Num * 1_000_000 / tb.Den
}

// Packet is an owned encoder packet: one compressed audio or video access
// unit with presentation/decoding timestamps.
//
// Invariants: DTS <= PTS; DTSUsec is recomputed whenever DTS changes (use
// SetDTS, never assign DTS directly outside this package); packets
// produced by a given encoder carry monotonically nondecreasing DTS.
type Packet struct {
	Type     PacketType
	TrackIdx int // 0..MaxMixes-1, meaningful for audio only

	PTS int64
	DTS int64
	TB  Timebase

	DTSUsec int64 // derived: DTS * 1e6 * Num / Den

	Keyframe bool
	Priority int // 0 = highest; caption injection only considers <= 1

	Data []byte

	// Encoder identifies the producing encoder, used by the interleaver to
	// resolve TrackIdx for audio packets and by encoder pairing.
	Encoder Encoder
}

// SetDTS assigns DTS and recomputes DTSUsec, preserving the DTS/DTSUsec
// invariant.
func (p *Packet) SetDTS(dts int64) {
	p.DTS = dts
	p.DTSUsec = p.TB.ToUsec(dts)
}

// Clone returns an independent deep copy of the packet, used on the
// non-delay path where the interleaver cannot take ownership of the
// caller's buffer.
func (p *Packet) Clone() *Packet {
	cp := *p
	if p.Data != nil {
		cp.Data = make([]byte, len(p.Data))
		copy(cp.Data, p.Data)
	}
	return &cp
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s[track=%d pts=%d dts=%d dts_usec=%d key=%v]",
		p.Type, p.TrackIdx, p.PTS, p.DTS, p.DTSUsec, p.Keyframe)
}

// RawVideoFrame is a raw (unencoded) video frame pushed by a Source on the
// raw path.
type RawVideoFrame struct {
	TimestampNs int64
	Data        []byte
	Width       int
	Height      int
}

// RawAudioFrame is a raw (unencoded) audio frame pushed by a Source on the
// raw path. MixIdx selects which audio mixer produced it, for sinks
// declaring MultiTrack.
type RawAudioFrame struct {
	TimestampNs int64
	Data        []byte
	MixIdx      int
}
