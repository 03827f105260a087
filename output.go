package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
)

// Output is the top-level entity: identity, bound encoders/service, and
// the finite state machine driving a Sink through
// create/start/stop/pause/reconnect.
type Output struct {
	id   string
	name string

	flags    Flag
	settings Settings

	sink    Sink
	service Service
	emitter Emitter

	state phaseState

	encoders *encoderSet

	pauseVideo *PauseState
	pauseAudio [MaxMixes]*PauseState

	captions    *CaptionQueue
	interleaver *Interleaver
	delay       *DelayBuffer
	capture     *DataCapture

	reconnect *ReconnectController

	mu               sync.Mutex
	lastError        string
	stopCode         StopCode
	totalFrames      uint64
	totalAudioFrames uint64
	startFrames      uint64
	startAudioFrames uint64

	ref *Ref
}

// NewOutput allocates an Output, wires the encoded-path components, and
// calls the sink's Create. On failure
// the partially initialized Output is discarded (nothing to tear down yet,
// since encoders/service are bound afterward).
func NewOutput(ctx context.Context, id, name string, settings Settings, sink Sink, emitter Emitter) (*Output, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if emitter == nil {
		emitter = NewLogrusEmitter(nil)
	}
	if settings.Reconnect.MaxRetries == 0 && settings.Reconnect.RetrySec == 0 {
		settings.Reconnect = DefaultReconnectSettings()
	}

	flags := sink.Flags()
	settings.Flags = flags

	o := &Output{
		id:       id,
		name:     name,
		flags:    flags,
		settings: settings,
		sink:     sink,
		service:  settings.Service,
		emitter:  emitter,
		encoders: &encoderSet{},
		captions: NewCaptionQueue(),
	}

	frameIntervalNs := settings.VideoFrameInterval.Nanoseconds()
	o.pauseVideo = NewPauseState(frameIntervalNs)
	for i := range o.pauseAudio {
		o.pauseAudio[i] = NewPauseState(frameIntervalNs)
	}

	o.delay = NewDelayBuffer(settings.Delay, o.finalPush)
	o.delay.SetActive(settings.Delay.Active())

	downstream := o.finalPush
	if settings.Delay.Active() {
		downstream = o.delay.Push
	}
	o.interleaver = NewInterleaver(o.encoders, o.captions, downstream, o.incrementVideoFrames)

	o.capture = NewDataCapture(o.encoders, o.interleaver, o.delay, sink, flags, settings.MixerMask)
	o.reconnect = NewReconnectController(settings.Reconnect)
	o.ref = NewRef(o, func(target *Output) { target.sink.Destroy() })

	if err := sink.Create(ctx, settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkCreateFailed, err)
	}
	return o, nil
}

// RefHandle returns the strong/weak control block for this Output.
func (o *Output) RefHandle() *Ref { return o.ref }

func (o *Output) ID() string   { return o.id }
func (o *Output) Name() string { return o.name }
func (o *Output) Phase() Phase { return o.state.get() }
func (o *Output) Active() bool { return o.state.flags.active.Load() }
func (o *Output) Paused() bool { return o.state.flags.paused.Load() }

// emit stamps the output id and forwards to the injected Emitter, never
// a package-level singleton.
func (o *Output) emit(sig Signal) {
	sig.OutputID = o.id
	if o.emitter != nil {
		o.emitter.Emit(sig)
	}
}

// checkForceEncoder rejects an encoder whose Codec() doesn't match a
// sink that declares FlagForceEncoder and implements ForceCodecSink.
func (o *Output) checkForceEncoder(e Encoder) error {
	if !o.flags.Has(FlagForceEncoder) {
		return nil
	}
	fc, ok := o.sink.(ForceCodecSink)
	if !ok {
		return nil
	}
	if e.Codec() != fc.RequiredCodec() {
		return ErrForceEncoderMismatch
	}
	return nil
}

// BindVideoEncoder binds the output's single video encoder.
func (o *Output) BindVideoEncoder(e Encoder) error {
	if err := o.checkForceEncoder(e); err != nil {
		return err
	}
	o.encoders.setVideo(e)
	return nil
}

// BindAudioEncoder binds an audio encoder at the given mixer index
// (0..MaxMixes-1).
func (o *Output) BindAudioEncoder(idx int, e Encoder) error {
	if err := o.checkForceEncoder(e); err != nil {
		return err
	}
	o.encoders.setAudio(idx, e)
	o.interleaver.SetAudioTracks(o.encoders.boundAudioIndices())
	return nil
}

// BindService attaches the network-endpoint metadata this output streams
// to. Detaching a service that already has an output bound is left to
// the Service implementation itself.
func (o *Output) BindService(s Service) {
	o.service = s
}

// Start transitions an idle Output to active (or delayed-starting).
func (o *Output) Start(ctx context.Context) error {
	if o.state.get() != PhaseIdle {
		return ErrAlreadyActive
	}
	o.reconnect.Reset()

	if o.flags.Has(FlagService) && o.service != nil {
		if err := o.service.Initialize(o); err != nil {
			return fmt.Errorf("%w: %v", ErrServiceRejected, err)
		}
		o.service.Activate()
	}

	if o.flags.Has(FlagEncoded) && o.settings.Delay.Active() {
		return o.startDelayed(ctx)
	}
	return o.startImmediate(ctx)
}

func (o *Output) startImmediate(ctx context.Context) error {
	o.state.set(PhaseStarting)
	o.emit(Signal{Name: SignalStarting})

	if err := o.sink.Start(ctx); err != nil {
		o.state.set(PhaseIdle)
		return err
	}
	if err := o.capture.Begin(ctx); err != nil {
		_ = o.sink.Stop(0)
		o.state.set(PhaseIdle)
		return err
	}

	o.mu.Lock()
	o.startFrames, o.startAudioFrames = o.totalFrames, o.totalAudioFrames
	o.mu.Unlock()

	o.state.flags.active.Store(true)
	o.state.flags.dataActive.Store(true)
	o.state.set(PhaseActive)
	o.emit(Signal{Name: SignalActivate})
	o.emit(Signal{Name: SignalStart})
	return nil
}

// startDelayed is the DelayedStarting path: the sink is started and
// encoders begin producing into the delay buffer immediately (so the
// buffer starts filling), but the phase only promotes to DelayedActive,
// and the activate/start signals only fire, once the delay window has
// elapsed — the output doesn't report itself fully live until the
// buffer has had time to fill.
func (o *Output) startDelayed(ctx context.Context) error {
	o.state.set(PhaseDelayedStarting)
	o.emit(Signal{Name: SignalStarting})

	if err := o.sink.Start(ctx); err != nil {
		o.state.set(PhaseIdle)
		return err
	}
	if err := o.capture.Begin(ctx); err != nil {
		_ = o.sink.Stop(0)
		o.state.set(PhaseIdle)
		return err
	}
	o.state.flags.active.Store(true)
	o.state.flags.delayActive.Store(true)

	delay := time.Duration(o.settings.Delay.Seconds) * time.Second
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		o.beginDelayedCapture()
	}()
	return nil
}

func (o *Output) beginDelayedCapture() {
	if o.state.get() != PhaseDelayedStarting {
		return
	}
	o.mu.Lock()
	o.startFrames, o.startAudioFrames = o.totalFrames, o.totalAudioFrames
	o.mu.Unlock()

	o.state.flags.dataActive.Store(true)
	o.state.flags.delayCapture.Store(true)
	o.state.set(PhaseDelayedActive)
	o.emit(Signal{Name: SignalActivate})
	o.emit(Signal{Name: SignalStart})
}

// Stop begins an orderly shutdown, honoring any configured delay window.
func (o *Output) Stop(ctx context.Context) error {
	phase := o.state.get()
	if phase == PhaseStopping || phase == PhaseIdle {
		return nil
	}
	if o.state.flags.reconnecting.Load() {
		return o.ForceStop()
	}

	now := time.Now()
	endTs := now.UnixNano()
	if o.flags.Has(FlagEncoded) && o.settings.Delay.Active() {
		endTs = now.Add(time.Duration(o.settings.Delay.Seconds) * time.Second).UnixNano()
	}

	o.state.set(PhaseStopping)
	o.emit(Signal{Name: SignalStopping})
	go o.teardown(ctx, endTs, StopSuccess)
	return nil
}

// ForceStop tears the Output down unconditionally, without waiting for
// the reconnect worker (cancels it rather than joining it inline).
func (o *Output) ForceStop() error {
	o.reconnect.Cancel()
	if o.settings.Delay.Active() {
		o.delay.OnDisconnect()
		o.state.flags.delayActive.Store(false)
	}
	o.state.set(PhaseStopping)
	go o.teardown(context.Background(), 0, StopSuccess)
	return nil
}

// teardown stops every encoder (concurrently), drains the delay buffer,
// stops the sink, then emits deactivate, signals stopping_event, and
// emits stop.
func (o *Output) teardown(ctx context.Context, endTs int64, code StopCode) {
	var result *multierror.Error
	if err := o.capture.End(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	// Encoders are stopped above, so no further Push calls will arrive to
	// age packets out of the delay buffer; drain whatever is left before
	// the sink itself goes down.
	o.delay.Flush()
	if err := o.sink.Stop(endTs); err != nil {
		result = multierror.Append(result, err)
	}

	o.emit(Signal{Name: SignalDeactivate})
	o.state.flags.active.Store(false)
	o.state.flags.dataActive.Store(false)
	o.state.flags.delayActive.Store(false)
	o.state.flags.delayCapture.Store(false)
	o.state.flags.stoppingEvent.Store(true)

	if o.flags.Has(FlagService) && o.service != nil {
		o.service.Deactivate()
	}

	o.finalize(code, result.ErrorOrNil())
}

func (o *Output) finalize(code StopCode, err error) {
	o.mu.Lock()
	o.stopCode = code
	if err != nil {
		o.lastError = err.Error()
	}
	o.mu.Unlock()

	o.state.set(PhaseIdle)

	sig := Signal{Name: SignalStop, Code: code, HasCode: true}
	if err != nil {
		sig.LastError = err.Error()
		sig.HasError = true
	}
	o.emit(sig)
}

// canReconnect reports whether the stop code warrants a reconnect
// attempt: DISCONNECTED with a nonzero retry maximum, or already
// reconnecting with a code other than SUCCESS.
func (o *Output) canReconnect(code StopCode) bool {
	if code == StopDisconnected && o.settings.Reconnect.MaxRetries > 0 {
		return true
	}
	return o.state.flags.reconnecting.Load() && code != StopSuccess
}

// SignalStop is called by the sink on disconnect or normal completion.
func (o *Output) SignalStop(code StopCode) {
	if !o.canReconnect(code) {
		o.mu.Lock()
		o.stopCode = code
		o.mu.Unlock()
		_ = o.Stop(context.Background())
		return
	}

	o.mu.Lock()
	o.stopCode = code
	o.mu.Unlock()

	o.state.flags.reconnecting.Store(true)
	if o.settings.Delay.Active() {
		o.delay.OnDisconnect()
	}
	_ = o.capture.End(context.Background())
	o.state.flags.dataActive.Store(false)
	o.scheduleReconnect()
}

// scheduleReconnect drives the Reconnect Controller.
func (o *Output) scheduleReconnect() {
	ctx := context.Background()
	o.reconnect.Start(ctx,
		func(attempt int, timeoutSec int) {
			o.emit(Signal{Name: SignalReconnect, TimeoutSec: timeoutSec, HasTimeout: true})
			if err := o.startActual(ctx); err == nil {
				o.state.flags.reconnecting.Store(false)
				o.reconnect.Reset()
				o.emit(Signal{Name: SignalReconnectSuccess})
			}
		},
		func() {
			o.state.flags.reconnecting.Store(false)
			o.state.flags.delayActive.Store(false)
			o.teardown(context.Background(), 0, StopDisconnected)
		},
	)
}

// startActual is the internal start the reconnect loop calls on each
// retry timeout: it bypasses the delayed-start re-entry entirely.
func (o *Output) startActual(ctx context.Context) error {
	if err := o.sink.Start(ctx); err != nil {
		return err
	}
	if err := o.capture.Begin(ctx); err != nil {
		return err
	}
	o.state.flags.dataActive.Store(true)
	return nil
}

// Pause begins or ends a pause, atomically across the bound encoders.
func (o *Output) Pause(enable bool) error {
	if !o.flags.Has(FlagCanPause) {
		return ErrPauseUnsupported
	}
	if !o.state.flags.active.Load() {
		return ErrNotActive
	}
	if o.state.flags.paused.Load() == enable {
		return ErrPauseNoop
	}

	now := time.Now().UnixNano()
	var ok bool
	if o.flags.Has(FlagEncoded) {
		idxs := o.encoders.boundAudioIndices()
		audioStates := make([]*PauseState, 0, len(idxs))
		for _, i := range idxs {
			audioStates = append(audioStates, o.pauseAudio[i])
		}
		ok = pauseAll(enable, now, o.pauseVideo, audioStates)
	} else if enable {
		ok = o.pauseVideo.Begin(now)
	} else {
		ok = o.pauseVideo.End(now)
	}
	if !ok {
		return ErrPauseNoop
	}

	o.state.flags.paused.Store(enable)
	name := SignalUnpause
	if enable {
		name = SignalPause
	}
	o.emit(Signal{Name: name})
	return nil
}

// PushRawVideo delivers one raw video frame on the raw path.
func (o *Output) PushRawVideo(frame *RawVideoFrame) error {
	if !o.state.flags.dataActive.Load() {
		return ErrNotActive
	}
	o.pauseVideo.NoteVideoTs(frame.TimestampNs)
	return o.capture.PushRawVideo(o.pauseVideo, frame)
}

// PushRawAudio delivers one raw audio frame, routed by MixIdx through the
// mixer_mask and that mixer's own pause state.
func (o *Output) PushRawAudio(frame *RawAudioFrame) error {
	if !o.state.flags.dataActive.Load() {
		return ErrNotActive
	}
	ps := o.pauseVideo
	if frame.MixIdx >= 0 && frame.MixIdx < MaxMixes {
		ps = o.pauseAudio[frame.MixIdx]
	}
	return o.capture.PushRawAudio(ps, frame)
}

// PushCaptionText enqueues a text caption line.
func (o *Output) PushCaptionText(text string, displayDuration float64) {
	o.captions.PushText(text, displayDuration)
}

// PushCaptionTriple enqueues a raw CEA-708 cc_data triple.
func (o *Output) PushCaptionTriple(b0, b1, b2 byte) {
	o.captions.PushTriple(b0, b1, b2)
}

// incrementVideoFrames is the interleaver's onVideoEmit callback,
// invoked once per video packet the interleaver emits.
func (o *Output) incrementVideoFrames() {
	o.mu.Lock()
	o.totalFrames++
	o.mu.Unlock()
}

// finalPush is the ultimate downstream handler for both the interleaved
// and per-type-default paths. Video frame counting for
// outputs that route through the interleaver happens in
// incrementVideoFrames instead, since the interleaver calls that on every
// video packet before this handler sees it; counting here too would
// double-count.
func (o *Output) finalPush(pkt *Packet) {
	if pkt.Type == PacketAudio {
		o.mu.Lock()
		o.totalAudioFrames++
		o.mu.Unlock()
	} else if !(o.flags.Has(FlagVideo) && o.flags.Has(FlagAudio)) {
		o.mu.Lock()
		o.totalFrames++
		o.mu.Unlock()
	}
	_ = o.sink.PushEncodedPacket(pkt)
}

// TotalFrames returns the number of video frames delivered since Start.
func (o *Output) TotalFrames() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalFrames - o.startFrames
}

// TotalAudioFrames returns the number of audio frames delivered since
// Start.
func (o *Output) TotalAudioFrames() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalAudioFrames - o.startAudioFrames
}

// ActiveDelay reports the configured delay window, or 0 if none.
func (o *Output) ActiveDelay() time.Duration {
	if !o.settings.Delay.Active() {
		return 0
	}
	return time.Duration(o.settings.Delay.Seconds) * time.Second
}

// StopCode returns the most recently recorded stop code.
func (o *Output) StopCode() StopCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopCode
}

// LastError returns the output's own last error, falling back to the
// bound video then first audio encoder's last error.
func (o *Output) LastError() string {
	o.mu.Lock()
	err := o.lastError
	o.mu.Unlock()
	if err != "" {
		return err
	}

	video, audio := o.encoders.snapshot()
	if video != nil {
		if e := video.LastError(); e != nil {
			return e.Error()
		}
	}
	for _, a := range audio {
		if e := a.LastError(); e != nil {
			return e.Error()
		}
	}
	return ""
}
