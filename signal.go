package output

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SignalName enumerates the observer-bus signals an Output emits over
// its lifecycle. Emitter is an injected collaborator rather than a
// process-wide singleton, so multiple Outputs can be observed
// independently.
type SignalName string

const (
	SignalStarting         SignalName = "starting"
	SignalStart            SignalName = "start"
	SignalStopping         SignalName = "stopping"
	SignalStop             SignalName = "stop"
	SignalActivate         SignalName = "activate"
	SignalDeactivate       SignalName = "deactivate"
	SignalReconnect        SignalName = "reconnect"
	SignalReconnectSuccess SignalName = "reconnect_success"
	SignalPause            SignalName = "pause"
	SignalUnpause          SignalName = "unpause"
	SignalWriting          SignalName = "writing"
	SignalWrote            SignalName = "wrote"
	SignalWritingError     SignalName = "writing_error"
)

// Signal is one emitted event, carrying whichever optional arguments
// (stop code, last error, timeout) apply to that signal name.
type Signal struct {
	Name        SignalName
	OutputID    string
	Code        StopCode
	LastError   string
	TimeoutSec  int
	HasCode     bool
	HasError    bool
	HasTimeout  bool
}

// Emitter is the injected signal-bus collaborator.
type Emitter interface {
	Emit(Signal)
}

// logrusEmitter is the default Emitter, logging every signal through a
// structured logger. It is not a
// process-wide singleton: each Output is constructed with its own
// Emitter instance (normally wrapping a shared *logrus.Logger, which is
// the part that may reasonably be process-wide).
type logrusEmitter struct {
	log *logrus.Entry
}

// NewLogrusEmitter wraps a logger (nil selects logrus.StandardLogger())
// as an Emitter.
func NewLogrusEmitter(log *logrus.Logger) Emitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &logrusEmitter{log: logrus.NewEntry(log)}
}

func (e *logrusEmitter) Emit(s Signal) {
	entry := e.log.WithField("output_id", s.OutputID).WithField("signal", s.Name)
	if s.HasCode {
		entry = entry.WithField("stop_code", s.Code.String())
	}
	if s.HasError {
		entry = entry.WithField("last_error", s.LastError)
	}
	if s.HasTimeout {
		entry = entry.WithField("timeout_sec", s.TimeoutSec)
	}
	switch s.Name {
	case SignalWritingError:
		entry.Warn("output signal")
	case SignalStop:
		if s.HasCode && s.Code != StopSuccess {
			entry.Warn("output signal")
		} else {
			entry.Info("output signal")
		}
	case SignalReconnect:
		entry.Warn("output signal")
	case SignalWriting, SignalWrote:
		entry.Debug("output signal")
	default:
		// Lifecycle transitions (starting, start, stopping, activate,
		// deactivate, reconnect_success, pause, unpause) are low-frequency
		// and worth Info; only the per-packet signals above are noisy
		// enough to stay at Debug.
		entry.Info("output signal")
	}
}

// RecordingEmitter is a test collaborator that records every emitted
// signal in order, for assertions.
type RecordingEmitter struct {
	mu      sync.Mutex
	signals []Signal
}

func NewRecordingEmitter() *RecordingEmitter { return &RecordingEmitter{} }

func (r *RecordingEmitter) Emit(s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

// Signals returns a snapshot of every signal recorded so far, in order.
func (r *RecordingEmitter) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Names returns just the signal names recorded so far, in order — handy
// for table-driven assertions.
func (r *RecordingEmitter) Names() []SignalName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalName, len(r.signals))
	for i, s := range r.signals {
		out[i] = s.Name
	}
	return out
}
