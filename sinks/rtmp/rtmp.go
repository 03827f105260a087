// Package rtmp implements an RTMP network-streamer Sink: it round-trips
// encoder packets as FLV video/audio tags over an RTMP connection to a
// bound Service's URL.
//
// This is the primary SERVICE-flagged sink, exercising the Service
// contract (URL/credentials, initialize/activate/deactivate). It holds no
// handle on the Output and does not report a disconnect back to it, so a
// dropped connection does not by itself start a reconnect. Grounded
// on the client-dial usage in
// thesyncim-media/examples/rtmp-webrtc/main.go (server side of the same
// library) and other_examples/chenguaself-bililive-go__types.go's RTMP
// push shape.
package rtmp

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	engine "github.com/voka-av/outputengine"
)

// Sink pushes encoded H.264/AAC access units as RTMP video/audio messages.
// It declares ENCODED|VIDEO|AUDIO|SERVICE|CAN_PAUSE — no MULTI_TRACK, since
// FLV/RTMP carries exactly one audio and one video stream.
type Sink struct {
	mu     sync.Mutex
	conn   *rtmp.ClientConn
	stream *rtmp.Stream

	settings engine.Settings

	totalBytes    atomic.Uint64
	droppedFrames atomic.Uint64
}

// New constructs an RTMP Sink. It does not dial until Start.
func New() *Sink { return &Sink{} }

func (s *Sink) Flags() engine.Flag {
	return engine.FlagEncoded | engine.FlagVideo | engine.FlagAudio | engine.FlagService | engine.FlagCanPause
}

func (s *Sink) Create(ctx context.Context, settings engine.Settings) error {
	s.settings = settings
	if settings.Service == nil {
		return fmt.Errorf("rtmp sink: requires a bound service")
	}
	return nil
}

func (s *Sink) Start(ctx context.Context) error {
	url := s.settings.Service.URL()

	conn, err := rtmp.Dial("rtmp", url, &rtmp.ConnConfig{})
	if err != nil {
		return fmt.Errorf("rtmp: dial %s: %w", url, err)
	}

	stream, err := conn.CreateStream(&rtmpmsg.NetConnectionCreateStream{}, 0)
	if err != nil {
		conn.Close()
		return fmt.Errorf("rtmp: create stream: %w", err)
	}

	user, _ := s.settings.Service.Credentials()
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: streamKey(url, user),
		PublishingType: "live",
	}); err != nil {
		conn.Close()
		return fmt.Errorf("rtmp: publish: %w", err)
	}

	s.mu.Lock()
	s.conn, s.stream = conn, stream
	s.mu.Unlock()
	return nil
}

func streamKey(url, user string) string {
	if user != "" {
		return user
	}
	return "live"
}

func (s *Sink) Stop(endTsNs int64) error {
	s.mu.Lock()
	conn := s.conn
	s.conn, s.stream = nil, nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// PushEncodedPacket writes one access unit as an RTMP video or audio
// message, the FLV tag body without the outer FLV tag header (the RTMP
// chunk stream already frames message type/size).
func (s *Sink) PushEncodedPacket(pkt *engine.Packet) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		s.droppedFrames.Add(1)
		return engine.ErrNotActive
	}

	timestamp := uint32(pkt.TB.ToUsec(pkt.DTS) / 1000)

	var err error
	switch pkt.Type {
	case engine.PacketVideo:
		err = stream.Write(9, timestamp, &rtmpmsg.VideoMessage{
			Payload: bytes.NewReader(pkt.Data),
		})
	case engine.PacketAudio:
		err = stream.Write(8, timestamp, &rtmpmsg.AudioMessage{
			Payload: bytes.NewReader(pkt.Data),
		})
	}
	if err != nil {
		s.droppedFrames.Add(1)
		return fmt.Errorf("rtmp: write: %w", err)
	}
	s.totalBytes.Add(uint64(len(pkt.Data)))
	return nil
}

// PushRawVideo/PushRawAudio are no-ops: this sink only accepts ENCODED
// input.
func (s *Sink) PushRawVideo(frame *engine.RawVideoFrame) error { return nil }
func (s *Sink) PushRawAudio(frame *engine.RawAudioFrame) error { return nil }

func (s *Sink) Destroy() {
	s.mu.Lock()
	conn := s.conn
	s.conn, s.stream = nil, nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Sink) TotalBytes() uint64     { return s.totalBytes.Load() }
func (s *Sink) DroppedFrames() uint64  { return s.droppedFrames.Load() }
func (s *Sink) Congestion() float64    { return 0 }
func (s *Sink) ConnectTimeMs() int64   { return 0 }

var _ engine.Sink      = (*Sink)(nil)
var _ engine.SinkStats = (*Sink)(nil)
