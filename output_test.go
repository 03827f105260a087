package output

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pionwebrtc "github.com/pion/webrtc/v4"
)

// fakeSink is a minimal in-memory Sink used to drive Output lifecycle
// tests without any real network I/O.
type fakeSink struct {
	mu sync.Mutex

	flags Flag

	created   bool
	started   bool
	stopped   bool
	destroyed bool

	pushedPackets int
	requiredCodec string
}

func newFakeSink(flags Flag) *fakeSink { return &fakeSink{flags: flags} }

func (s *fakeSink) Flags() Flag { return s.flags }
func (s *fakeSink) Create(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	return nil
}
func (s *fakeSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}
func (s *fakeSink) Stop(endTsNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
func (s *fakeSink) PushEncodedPacket(pkt *Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushedPackets++
	return nil
}
func (s *fakeSink) PushRawVideo(frame *RawVideoFrame) error { return nil }
func (s *fakeSink) PushRawAudio(frame *RawAudioFrame) error { return nil }
func (s *fakeSink) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
}
func (s *fakeSink) RequiredCodec() string { return s.requiredCodec }

var _ Sink = (*fakeSink)(nil)
var _ ForceCodecSink = (*fakeSink)(nil)

// fakeEncoder is a minimal Encoder that never produces packets on its own,
// keeping lifecycle tests deterministic.
type fakeEncoder struct {
	mu      sync.Mutex
	kind    pionwebrtc.RTPCodecType
	codec   string
	lastErr error
	paired  Encoder
	started bool
	stopped bool
}

func (e *fakeEncoder) Kind() pionwebrtc.RTPCodecType { return e.kind }
func (e *fakeEncoder) Start(ctx context.Context, handler PacketHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}
func (e *fakeEncoder) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
}
func (e *fakeEncoder) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
func (e *fakeEncoder) Pair(other Encoder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paired = other
	return nil
}
func (e *fakeEncoder) Paired() Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paired
}
func (e *fakeEncoder) Codec() string { return e.codec }

var _ Encoder = (*fakeEncoder)(nil)

func newFakeVideoEncoder(codec string) *fakeEncoder {
	return &fakeEncoder{kind: pionwebrtc.RTPCodecTypeVideo, codec: codec}
}
func newFakeAudioEncoder(codec string) *fakeEncoder {
	return &fakeEncoder{kind: pionwebrtc.RTPCodecTypeAudio, codec: codec}
}

func waitForPhase(t *testing.T, o *Output, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, stuck at %s", want, o.Phase())
}

func TestOutputStartStopLifecycleSignals(t *testing.T) {
	sink := newFakeSink(FlagEncoded | FlagVideo | FlagAudio | FlagCanPause)
	emitter := NewRecordingEmitter()

	settings := Settings{Name: "test", VideoFrameInterval: 33_333_333 * time.Nanosecond}
	out, err := NewOutput(context.Background(), "", "test", settings, sink, emitter)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if err := out.BindVideoEncoder(newFakeVideoEncoder("h264")); err != nil {
		t.Fatalf("BindVideoEncoder: %v", err)
	}
	if err := out.BindAudioEncoder(0, newFakeAudioEncoder("opus")); err != nil {
		t.Fatalf("BindAudioEncoder: %v", err)
	}

	if err := out.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if out.Phase() != PhaseActive {
		t.Fatalf("phase after Start = %s, want active", out.Phase())
	}
	if !out.Active() {
		t.Fatal("Active() false after Start")
	}

	names := emitter.Names()
	wantPrefix := []SignalName{SignalStarting, SignalActivate, SignalStart}
	if len(names) != len(wantPrefix) {
		t.Fatalf("signals after Start = %v, want %v", names, wantPrefix)
	}
	for i, n := range wantPrefix {
		if names[i] != n {
			t.Errorf("signal[%d] = %s, want %s", i, names[i], n)
		}
	}

	if err := out.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForPhase(t, out, PhaseIdle)

	names = emitter.Names()
	wantFull := []SignalName{SignalStarting, SignalActivate, SignalStart, SignalStopping, SignalDeactivate, SignalStop}
	if len(names) != len(wantFull) {
		t.Fatalf("signals after Stop = %v, want %v", names, wantFull)
	}
	for i, n := range wantFull {
		if names[i] != n {
			t.Errorf("signal[%d] = %s, want %s", i, names[i], n)
		}
	}

	if !sink.started || !sink.stopped {
		t.Error("sink Start/Stop not both observed")
	}
}

func TestOutputStartTwiceRejected(t *testing.T) {
	sink := newFakeSink(FlagEncoded | FlagVideo)
	out, err := NewOutput(context.Background(), "", "test", Settings{VideoFrameInterval: time.Millisecond}, sink, NewRecordingEmitter())
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if err := out.BindVideoEncoder(newFakeVideoEncoder("h264")); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start() = %v, want ErrAlreadyActive", err)
	}
}

func TestOutputForceEncoderRejectsMismatchedCodec(t *testing.T) {
	sink := newFakeSink(FlagEncoded | FlagVideo | FlagForceEncoder)
	sink.requiredCodec = "h264"

	out, err := NewOutput(context.Background(), "", "test", Settings{VideoFrameInterval: time.Millisecond}, sink, NewRecordingEmitter())
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	if err := out.BindVideoEncoder(newFakeVideoEncoder("vp8")); !errors.Is(err, ErrForceEncoderMismatch) {
		t.Fatalf("BindVideoEncoder with mismatched codec = %v, want ErrForceEncoderMismatch", err)
	}
	if err := out.BindVideoEncoder(newFakeVideoEncoder("h264")); err != nil {
		t.Fatalf("BindVideoEncoder with matching codec should succeed, got %v", err)
	}
}

func TestOutputLastErrorFallsBackToEncoder(t *testing.T) {
	sink := newFakeSink(FlagEncoded | FlagVideo)
	out, err := NewOutput(context.Background(), "", "test", Settings{VideoFrameInterval: time.Millisecond}, sink, NewRecordingEmitter())
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	video := newFakeVideoEncoder("h264")
	video.lastErr = errors.New("encode failure")
	if err := out.BindVideoEncoder(video); err != nil {
		t.Fatal(err)
	}

	if got := out.LastError(); got != "encode failure" {
		t.Fatalf("LastError() = %q, want %q (inherited from the video encoder)", got, "encode failure")
	}
}

func TestOutputPauseUnsupportedWithoutFlag(t *testing.T) {
	sink := newFakeSink(FlagEncoded | FlagVideo) // no FlagCanPause
	out, err := NewOutput(context.Background(), "", "test", Settings{VideoFrameInterval: time.Millisecond}, sink, NewRecordingEmitter())
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if err := out.BindVideoEncoder(newFakeVideoEncoder("h264")); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := out.Pause(true); !errors.Is(err, ErrPauseUnsupported) {
		t.Fatalf("Pause on a non-pausable sink = %v, want ErrPauseUnsupported", err)
	}
}
