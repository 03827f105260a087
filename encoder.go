package output

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// RTPCodecType re-exports pion's codec-kind enum, so track kind is
// described with the same type whether it comes from this package or
// from a webrtc-backed sink.
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeAudio = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo = webrtc.RTPCodecTypeVideo
)

// PacketHandler receives packets produced by an Encoder. The interleaver,
// delay buffer, and per-type default handlers all implement this.
type PacketHandler func(pkt *Packet)

// Encoder is the out-of-scope external collaborator that produces
// EncoderPackets; it is specified only by the interface the core
// consumes, never implemented here.
type Encoder interface {
	// Kind reports whether this is a video or audio encoder.
	Kind() RTPCodecType

	// Start begins encoding; produced packets are delivered to handler
	// until Stop is called.
	Start(ctx context.Context, handler PacketHandler) error

	// Stop halts encoding.
	Stop()

	// LastError returns the most recent encoder-side error, or nil.
	// Used for last-error inheritance when the Output itself has none.
	LastError() error

	// Pair associates this encoder with its counterpart of the opposite
	// kind. Pairing lets an audio
	// encoder wait for the paired video encoder's first frame before it
	// starts producing, so the two tracks start from a common origin.
	Pair(other Encoder) error

	// Paired reports the currently paired encoder, or nil.
	Paired() Encoder

	// Codec reports a codec identifier, used to validate FORCE_ENCODER
	// sinks before binding.
	Codec() string
}

// pairEncoders pairs the video and audio encoder of one Output before
// start, when both run. If either encoder already has a paired
// counterpart set, it returns ErrEncoderPairingConflict instead of
// silently proceeding unpaired.
func pairEncoders(video Encoder, audio Encoder) error {
	if video == nil || audio == nil {
		return nil
	}
	if video.Paired() != nil || audio.Paired() != nil {
		return ErrEncoderPairingConflict
	}
	if err := audio.Pair(video); err != nil {
		return err
	}
	return video.Pair(audio)
}

// encoderSet tracks the bound video encoder and up to MaxMixes audio
// encoders for one Output.
type encoderSet struct {
	mu    sync.Mutex
	video Encoder
	audio [MaxMixes]Encoder
}

func (s *encoderSet) setVideo(e Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = e
}

func (s *encoderSet) setAudio(idx int, e Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= 0 && idx < MaxMixes {
		s.audio[idx] = e
	}
}

func (s *encoderSet) snapshot() (Encoder, []Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio := make([]Encoder, 0, MaxMixes)
	for _, a := range s.audio {
		if a != nil {
			audio = append(audio, a)
		}
	}
	return s.video, audio
}

// boundAudioIndices returns the indices of every currently bound audio
// encoder, for interleaver pruning and per-track pause state selection.
func (s *encoderSet) boundAudioIndices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idxs []int
	for i, a := range s.audio {
		if a != nil {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// trackIndexOf resolves a producing audio encoder to its bound track
// index, tagging the packet it produced.
func (s *encoderSet) trackIndexOf(e Encoder) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.audio {
		if a == e {
			return i, true
		}
	}
	return 0, false
}
