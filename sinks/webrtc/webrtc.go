// Package webrtc implements a WebRTC track Sink: it writes encoded access
// units to a pion webrtc.TrackLocalStaticSample, letting pion own RTP
// packetization for the negotiated codec.
//
// Adapted from thesyncim-media/track.go's RTPCodecType re-export
// convention (now superseded at the package root, kept alive here at the
// point where it meets a real webrtc.TrackLocal).
package webrtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	engine "github.com/voka-av/outputengine"
)

// Sink writes encoded packets to one video and one audio
// TrackLocalStaticSample, added to a caller-owned PeerConnection before
// Create.
type Sink struct {
	VideoTrack *pionwebrtc.TrackLocalStaticSample
	AudioTrack *pionwebrtc.TrackLocalStaticSample

	mu           sync.Mutex
	lastVideoTs  int64
	lastAudioTs  int64
	haveVideo    bool
	haveAudio    bool

	totalBytes    atomic.Uint64
	droppedFrames atomic.Uint64
}

// New wraps already-created, already-negotiated tracks. Either may be nil
// for an audio-only or video-only output.
func New(video, audio *pionwebrtc.TrackLocalStaticSample) *Sink {
	return &Sink{VideoTrack: video, AudioTrack: audio}
}

func (s *Sink) Flags() engine.Flag {
	f := engine.FlagEncoded | engine.FlagCanPause
	if s.VideoTrack != nil {
		f |= engine.FlagVideo
	}
	if s.AudioTrack != nil {
		f |= engine.FlagAudio
	}
	return f
}

func (s *Sink) Create(ctx context.Context, settings engine.Settings) error { return nil }
func (s *Sink) Start(ctx context.Context) error                           { return nil }
func (s *Sink) Stop(endTsNs int64) error                                  { return nil }

// PushEncodedPacket converts one access unit to a media.Sample, deriving
// the sample duration from the gap since the previous packet on the same
// track (WriteSample's duration only affects RTP timestamp spacing when
// pion repacketizes, so a coarse estimate is sufficient here).
func (s *Sink) PushEncodedPacket(pkt *engine.Packet) error {
	frameTs := pkt.TB.ToUsec(pkt.DTS) * int64(time.Microsecond)

	switch pkt.Type {
	case engine.PacketVideo:
		if s.VideoTrack == nil {
			return nil
		}
		dur := s.sampleDuration(&s.lastVideoTs, &s.haveVideo, frameTs)
		if err := s.VideoTrack.WriteSample(media.Sample{Data: pkt.Data, Duration: dur}); err != nil {
			s.droppedFrames.Add(1)
			return fmt.Errorf("webrtc: write video sample: %w", err)
		}
	case engine.PacketAudio:
		if s.AudioTrack == nil {
			return nil
		}
		dur := s.sampleDuration(&s.lastAudioTs, &s.haveAudio, frameTs)
		if err := s.AudioTrack.WriteSample(media.Sample{Data: pkt.Data, Duration: dur}); err != nil {
			s.droppedFrames.Add(1)
			return fmt.Errorf("webrtc: write audio sample: %w", err)
		}
	}
	s.totalBytes.Add(uint64(len(pkt.Data)))
	return nil
}

func (s *Sink) sampleDuration(last *int64, have *bool, frameTs int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !*have {
		*have = true
		*last = frameTs
		return 33 * time.Millisecond
	}
	dur := time.Duration(frameTs - *last)
	*last = frameTs
	if dur <= 0 {
		return 33 * time.Millisecond
	}
	return dur
}

func (s *Sink) PushRawVideo(frame *engine.RawVideoFrame) error { return nil }
func (s *Sink) PushRawAudio(frame *engine.RawAudioFrame) error { return nil }

func (s *Sink) Destroy() {}

func (s *Sink) TotalBytes() uint64    { return s.totalBytes.Load() }
func (s *Sink) DroppedFrames() uint64 { return s.droppedFrames.Load() }
func (s *Sink) Congestion() float64   { return 0 }
func (s *Sink) ConnectTimeMs() int64  { return 0 }

var _ engine.Sink      = (*Sink)(nil)
var _ engine.SinkStats = (*Sink)(nil)
