package output

import "context"

// Flag is a bitmask of sink/output capabilities.
type Flag uint32

const (
	FlagVideo Flag = 1 << iota
	FlagAudio
	FlagEncoded
	FlagMultiTrack
	FlagService
	FlagCanPause
	FlagForceEncoder
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// StopCode enumerates why an output stopped.
type StopCode int

const (
	StopSuccess StopCode = iota
	StopBadPath
	StopConnectFailed
	StopInvalidStream
	StopError
	StopDisconnected
	StopUnsupported
	StopNoSpace
	StopEncodeError
	StopHDRDisabled
)

func (c StopCode) String() string {
	switch c {
	case StopSuccess:
		return "success"
	case StopBadPath:
		return "bad_path"
	case StopConnectFailed:
		return "connect_failed"
	case StopInvalidStream:
		return "invalid_stream"
	case StopError:
		return "error"
	case StopDisconnected:
		return "disconnected"
	case StopUnsupported:
		return "unsupported"
	case StopNoSpace:
		return "no_space"
	case StopEncodeError:
		return "encode_error"
	case StopHDRDisabled:
		return "hdr_disabled"
	default:
		return "unknown"
	}
}

// Sink is the pluggable consumer of finished packets/frames: a file
// muxer, a network streamer, etc. The core only ever
// calls through this interface; the wire protocol, container format, and
// network I/O belong entirely to the Sink implementation (sinks/ in this
// module).
type Sink interface {
	// Flags declares this sink's capabilities.
	Flags() Flag

	// Create initializes sink-side state for the given settings. May
	// return an error; the Output is then never started.
	Create(ctx context.Context, settings Settings) error

	// Start begins delivering data. Returns an error if the sink rejects
	// the start.
	Start(ctx context.Context) error

	// Stop asks the sink to flush and halt by endTsNs (wall-clock
	// nanoseconds); 0 means stop immediately without flushing.
	Stop(endTsNs int64) error

	// PushEncodedPacket delivers one interleaved, caption-injected packet.
	PushEncodedPacket(pkt *Packet) error

	// PushRawVideo/PushRawAudio deliver raw frames on the raw path. Sinks
	// that don't declare FlagVideo/FlagAudio may leave these as no-ops.
	PushRawVideo(frame *RawVideoFrame) error
	PushRawAudio(frame *RawAudioFrame) error

	// Destroy releases sink-side state.
	Destroy()
}

// SinkStats is optionally implemented by a Sink to expose runtime
// metrics.
type SinkStats interface {
	TotalBytes() uint64
	DroppedFrames() uint64
	Congestion() float64 // clamped to [0,1]
	ConnectTimeMs() int64
}

// ForceCodecSink is optionally implemented by a Sink that declares
// FlagForceEncoder, naming the single encoder codec it accepts.
type ForceCodecSink interface {
	Sink
	RequiredCodec() string
}

// Service describes a network endpoint a Sink streams to: URL,
// credentials, and an activation lifecycle bound to one Output at a time.
type Service interface {
	Initialize(o *Output) error
	Activate()
	Deactivate()
	URL() string
	Credentials() (user, pass string)
}
