// Package rtp implements an RTP/UDP network-streamer Sink: one RTP packet
// per encoder packet, written to a connected UDP net.Conn. No RTCP, no
// fragmentation of oversized access units — this sink stays thin,
// driving pion's wire-protocol library rather than reimplementing a full
// RTP stack.
//
// Adapted from thesyncim-media's pion/rtp packet aliasing convention
// (rtp.go, now superseded) and bluenviron-mediamtx's per-payload-type RTP
// packetization pattern (internal/formatprocessor).
package rtp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"

	engine "github.com/voka-av/outputengine"
)

// Header re-exports pion's RTP header type, for wire types this package
// doesn't want to wrap.
type Header = rtp.Header

// Sink packetizes encoder packets into single RTP packets and writes them
// to a UDP destination. Video and audio are written to separate
// destinations since RTP itself carries only one payload type per session.
type Sink struct {
	mu sync.Mutex

	videoConn net.Conn
	audioConn net.Conn

	videoAddr, audioAddr string
	videoPT, audioPT     uint8

	videoSeq, audioSeq atomic.Uint32
	videoSSRC          uint32
	audioSSRC          uint32

	totalBytes    atomic.Uint64
	droppedFrames atomic.Uint64
}

// Config selects destinations and RTP payload types for the two streams.
type Config struct {
	VideoAddr string
	AudioAddr string
	VideoPT   uint8
	AudioPT   uint8
}

func New(cfg Config) *Sink {
	return &Sink{
		videoAddr: cfg.VideoAddr,
		audioAddr: cfg.AudioAddr,
		videoPT:   cfg.VideoPT,
		audioPT:   cfg.AudioPT,
		videoSSRC: rand.Uint32(),
		audioSSRC: rand.Uint32(),
	}
}

func (s *Sink) Flags() engine.Flag {
	return engine.FlagEncoded | engine.FlagVideo | engine.FlagAudio | engine.FlagCanPause
}

func (s *Sink) Create(ctx context.Context, settings engine.Settings) error { return nil }

func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoAddr != "" {
		conn, err := net.Dial("udp", s.videoAddr)
		if err != nil {
			return fmt.Errorf("rtp: dial video %s: %w", s.videoAddr, err)
		}
		s.videoConn = conn
	}
	if s.audioAddr != "" {
		conn, err := net.Dial("udp", s.audioAddr)
		if err != nil {
			return fmt.Errorf("rtp: dial audio %s: %w", s.audioAddr, err)
		}
		s.audioConn = conn
	}
	return nil
}

func (s *Sink) Stop(endTsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.videoConn != nil {
		firstErr = s.videoConn.Close()
		s.videoConn = nil
	}
	if s.audioConn != nil {
		if err := s.audioConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.audioConn = nil
	}
	return firstErr
}

// PushEncodedPacket wraps the packet payload in one RTP packet and writes
// it to the corresponding UDP destination.
func (s *Sink) PushEncodedPacket(pkt *engine.Packet) error {
	s.mu.Lock()
	conn := s.videoConn
	pt := s.videoPT
	ssrc := s.videoSSRC
	seqCounter := &s.videoSeq
	if pkt.Type == engine.PacketAudio {
		conn, pt, ssrc, seqCounter = s.audioConn, s.audioPT, s.audioSSRC, &s.audioSeq
	}
	s.mu.Unlock()

	if conn == nil {
		s.droppedFrames.Add(1)
		return nil
	}

	seq := uint16(seqCounter.Add(1))
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         pkt.Keyframe,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      uint32(pkt.TB.ToUsec(pkt.DTS)),
			SSRC:           ssrc,
		},
		Payload: pkt.Data,
	}

	buf, err := p.Marshal()
	if err != nil {
		s.droppedFrames.Add(1)
		return fmt.Errorf("rtp: marshal: %w", err)
	}
	if _, err := conn.Write(buf); err != nil {
		s.droppedFrames.Add(1)
		return fmt.Errorf("rtp: write: %w", err)
	}
	s.totalBytes.Add(uint64(len(buf)))
	return nil
}

func (s *Sink) PushRawVideo(frame *engine.RawVideoFrame) error { return nil }
func (s *Sink) PushRawAudio(frame *engine.RawAudioFrame) error { return nil }

func (s *Sink) Destroy() { _ = s.Stop(0) }

func (s *Sink) TotalBytes() uint64    { return s.totalBytes.Load() }
func (s *Sink) DroppedFrames() uint64 { return s.droppedFrames.Load() }
func (s *Sink) Congestion() float64   { return 0 }
func (s *Sink) ConnectTimeMs() int64  { return 0 }

var _ engine.Sink      = (*Sink)(nil)
var _ engine.SinkStats = (*Sink)(nil)
