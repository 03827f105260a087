package output

import "sync"

// PauseState tracks the start/end of one pause interval, quantized to the
// video frame grid.
//
// Invariants: TsStart != 0 (with TsEnd == 0) means a pause is in
// progress; on pause-end, TsOffset += TsEnd - TsStart, and (TsStart,
// TsEnd) reset to zero so the next pause cycle starts clean.
type PauseState struct {
	mu sync.Mutex

	tsStart     int64
	tsEnd       int64
	tsOffset    int64
	lastVideoTs int64

	frameIntervalNs int64
}

// NewPauseState creates a PauseState quantizing against the given video
// frame interval.
func NewPauseState(frameIntervalNs int64) *PauseState {
	return &PauseState{frameIntervalNs: frameIntervalNs}
}

// closestVideoTs snaps `now` to the nearest video frame boundary relative
// to lastVideoTs, rounding half up.
func (p *PauseState) closestVideoTs(now int64) int64 {
	i := p.frameIntervalNs
	if i <= 0 {
		return now
	}
	diff := now - p.lastVideoTs
	steps := (2*diff + i) / (2 * i)
	return p.lastVideoTs + steps*i
}

// Begin starts a pause interval at `now`, snapped to the frame grid.
// Legal only when neither a pause is in progress nor pending.
func (p *PauseState) Begin(now int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tsStart != 0 || p.tsEnd != 0 {
		return false
	}
	p.tsStart = p.closestVideoTs(now)
	return true
}

// End closes the in-progress pause interval at `now`, advances tsOffset,
// and resets for the next cycle. Legal only when a pause has begun but
// not yet ended (ts_start != 0 && ts_end == 0).
func (p *PauseState) End(now int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tsStart == 0 || p.tsEnd != 0 {
		return false
	}
	p.tsEnd = p.closestVideoTs(now)
	p.tsOffset += p.tsEnd - p.tsStart
	p.tsStart, p.tsEnd = 0, 0
	return true
}

// Offset returns the accumulated pause offset to add to raw frame
// timestamps: the running sum of (ts_end - ts_start) across every
// completed pause cycle.
func (p *PauseState) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tsOffset
}

// NoteVideoTs records the latest observed video timestamp, used as the
// quantization anchor for the next Begin/End call.
func (p *PauseState) NoteVideoTs(ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVideoTs = ts
}

// Check reports whether a raw frame falls inside the (inclusive) current
// pause window and should be skipped. While paused
// (ts_end == 0) the window is open-ended from ts_start.
func (p *PauseState) Check(frameTs int64) (skip bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tsStart == 0 {
		return false
	}
	if p.tsEnd == 0 {
		return frameTs >= p.tsStart
	}
	return frameTs >= p.tsStart && frameTs <= p.tsEnd
}

// Adjust applies the accumulated pause offset to a raw timestamp.
func (p *PauseState) Adjust(rawTs int64) int64 {
	return rawTs + p.Offset()
}

// pauseAll atomically begins or ends pause across the video encoder's
// PauseState and every bound audio encoder's PauseState, for encoded
// outputs. A precondition check pass runs first across every state; if
// any of them cannot perform the requested transition, nothing is
// mutated and pauseAll returns false.
//
// Lock order: the video state's PauseState.mu is acquired before any
// audio state's.
func pauseAll(begin bool, now int64, video *PauseState, audio []*PauseState) bool {
	all := make([]*PauseState, 0, len(audio)+1)
	if video != nil {
		all = append(all, video)
	}
	all = append(all, audio...)

	// Precondition check pass: fail before any mutation if any state
	// cannot perform the requested transition.
	for _, ps := range all {
		ps.mu.Lock()
		ok := true
		if begin {
			ok = ps.tsStart == 0 && ps.tsEnd == 0
		} else {
			ok = ps.tsStart != 0 && ps.tsEnd == 0
		}
		ps.mu.Unlock()
		if !ok {
			return false
		}
	}

	for _, ps := range all {
		if begin {
			ps.Begin(now)
		} else {
			ps.End(now)
		}
	}
	return true
}
