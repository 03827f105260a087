// Package output implements a media output engine: it takes encoded (or
// raw) audio/video from per-track encoders, interleaves the tracks into a
// single monotonically-timestamped stream aligned to a common zero
// reference, optionally injects closed-caption SEI payloads into video
// keyframes, and drives a pluggable Sink through a lifecycle with
// automatic reconnection, delayed-start buffering, and pause support.
//
// # Architecture
//
//	Encoded path: Encoders -> PacketInterleaver (+ CaptionInjector on emit) -> (DelayBuffer) -> Sink
//	Raw path:     Source -> PauseController filter -> Sink
//	Control path: Output (state machine) installs/removes the above and starts/stops encoders
//
// Encoders, raw sources, sinks, and services are external collaborators;
// this package only depends on the narrow interfaces in encoder.go and
// sink.go. It does not parse codec bitstreams (beyond the NAL boundary
// needed to append caption SEI) and does not implement container muxing
// or network transports — those live in the sinks/ subpackages.
package output
