package output

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DataCapture wires up one Output's encode/raw-capture lifecycle:
// selecting the terminal packet callback, pairing encoders,
// starting/stopping them, and routing raw frames through the pause
// filter and mixer mask.
//
// Teardown concurrency is grounded on zsiec-prism/cmd/prism/main.go's
// errgroup.WithContext fan-out: every bound encoder is stopped concurrently
// rather than in a sequential loop.
type DataCapture struct {
	encoders    *encoderSet
	interleaver *Interleaver
	delay       *DelayBuffer
	sink        Sink
	flags       Flag
	mixerMask   uint32
}

// NewDataCapture wires the terminal-callback components for one Output:
// the already-constructed interleaver and delay buffer that
// encoder-produced packets are pushed into, and the sink itself.
func NewDataCapture(encoders *encoderSet, interleaver *Interleaver, delay *DelayBuffer, sink Sink, flags Flag, mixerMask uint32) *DataCapture {
	return &DataCapture{
		encoders:    encoders,
		interleaver: interleaver,
		delay:       delay,
		sink:        sink,
		flags:       flags,
		mixerMask:   mixerMask,
	}
}

// Begin activates data capture: pairs encoders, then starts every bound
// encoder against the terminal callback.
func (dc *DataCapture) Begin(ctx context.Context) error {
	video, audio := dc.encoders.snapshot()

	if video != nil {
		for _, a := range audio {
			if a.Paired() != nil {
				continue
			}
			if err := pairEncoders(video, a); err != nil {
				return err
			}
			break
		}
	}

	handler := dc.terminalHandler()

	if video != nil {
		if err := video.Start(ctx, handler); err != nil {
			return err
		}
	}
	for _, a := range audio {
		if err := a.Start(ctx, handler); err != nil {
			return err
		}
	}
	return nil
}

// terminalHandler selects the interleaver when this output mixes encoded
// video and audio, otherwise packets are handed to the delay buffer, which
// holds them while delay is active and otherwise passes them straight
// through to its downstream handler. Without a delay buffer they go to
// the sink directly.
func (dc *DataCapture) terminalHandler() PacketHandler {
	if dc.flags.Has(FlagVideo) && dc.flags.Has(FlagAudio) && dc.interleaver != nil {
		return dc.interleaver.Push
	}
	if dc.delay != nil {
		return dc.delay.Push
	}
	return func(pkt *Packet) { _ = dc.sink.PushEncodedPacket(pkt) }
}

// End tears data capture down: every bound encoder is stopped
// concurrently by a worker group, and End returns once all have stopped.
func (dc *DataCapture) End(ctx context.Context) error {
	video, audio := dc.encoders.snapshot()

	g, _ := errgroup.WithContext(ctx)
	if video != nil {
		v := video
		g.Go(func() error { v.Stop(); return nil })
	}
	for _, a := range audio {
		a := a
		g.Go(func() error { a.Stop(); return nil })
	}
	return g.Wait()
}

// PushRawVideo routes one raw video frame through the pause filter and
// the mixer-mask-free raw video path.
func (dc *DataCapture) PushRawVideo(pause *PauseState, frame *RawVideoFrame) error {
	if pause != nil {
		if pause.Check(frame.TimestampNs) {
			return nil
		}
		frame.TimestampNs = pause.Adjust(frame.TimestampNs)
	}
	return dc.sink.PushRawVideo(frame)
}

// PushRawAudio routes one raw audio frame through the configured
// mixer_mask bitmask and the pause filter for that mixer's track.
func (dc *DataCapture) PushRawAudio(pause *PauseState, frame *RawAudioFrame) error {
	if dc.mixerMask != 0 && frame.MixIdx >= 0 && frame.MixIdx < 32 {
		if dc.mixerMask&(1<<uint(frame.MixIdx)) == 0 {
			return nil
		}
	}
	if pause != nil {
		if pause.Check(frame.TimestampNs) {
			return nil
		}
		frame.TimestampNs = pause.Adjust(frame.TimestampNs)
	}
	return dc.sink.PushRawAudio(frame)
}
