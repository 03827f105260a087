package output

import "sync"

// Interleaver aligns audio/video, rebases timestamps to a common zero
// reference, keeps the buffer sorted by DTSUsec (video-first tie-break),
// and emits packets one at a time once ordering is guaranteed.
//
// Adapted from thesyncim-media/muxer.go's MediaMuxer — same shape
// (mutex-guarded buffer-and-pull with per-track offsets) but the pull
// algorithm is completely rewritten: MediaMuxer does drift-tolerant
// nearest-match sync for simulcast playback; Interleaver does a
// DTS-ordered insert/prune/rebase/emit algorithm instead.
type Interleaver struct {
	mu sync.Mutex

	packets []*Packet

	receivedVideo bool
	receivedAudio bool
	initialized   bool

	highestVideoUsec int64
	highestAudioUsec int64

	videoOffset  int64    // a PTS value
	audioOffsets [MaxMixes]int64 // DTS values, one per track

	// audioTracks is the set of currently bound audio track indices,
	// used by initialization pruning: if any bound track has no audio
	// yet, initialization is deferred rather than failed outright.
	audioTracks []int

	delayActive bool

	encoders *encoderSet
	captions *CaptionQueue

	emit         PacketHandler
	onVideoEmit  func()
}

// NewInterleaver constructs an Interleaver. emit is the downstream
// handler (the Delay Buffer's Push, or the Sink directly); onVideoEmit is
// called once per emitted video packet, letting the caller track total
// frame counts.
func NewInterleaver(encoders *encoderSet, captions *CaptionQueue, emit PacketHandler, onVideoEmit func()) *Interleaver {
	return &Interleaver{
		encoders:    encoders,
		captions:    captions,
		emit:        emit,
		onVideoEmit: onVideoEmit,
	}
}

// SetDelayActive controls whether incoming packets are moved (delay path
// owns release) or cloned.
func (il *Interleaver) SetDelayActive(active bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.delayActive = active
}

// SetAudioTracks declares which audio track indices are currently bound,
// for initialization pruning.
func (il *Interleaver) SetAudioTracks(idxs []int) {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.audioTracks = append([]int(nil), idxs...)
}

// Reset clears all buffered state, for reuse across a stop/start cycle.
func (il *Interleaver) Reset() {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.packets = nil
	il.receivedVideo = false
	il.receivedAudio = false
	il.initialized = false
	il.highestVideoUsec = 0
	il.highestAudioUsec = 0
	il.videoOffset = 0
	for i := range il.audioOffsets {
		il.audioOffsets[i] = 0
	}
}

// Push tags, gates, buffers, and conditionally emits one packet.
func (il *Interleaver) Push(pkt *Packet) {
	il.mu.Lock()
	defer il.mu.Unlock()

	// 1. Tag track.
	if pkt.Type == PacketAudio && il.encoders != nil {
		if idx, ok := il.encoders.trackIndexOf(pkt.Encoder); ok {
			pkt.TrackIdx = idx
		}
	}

	// 2. Keyframe gate.
	if pkt.Type == PacketVideo && !il.receivedVideo && !pkt.Keyframe {
		il.dropAudioBelowLocked(pkt.DTSUsec)
		return
	}

	// 3. Clone vs move.
	p := pkt
	if !il.delayActive {
		p = pkt.Clone()
	}

	// 4. Rebase (steady state) or mark reception.
	steadyState := il.receivedVideo && il.receivedAudio
	if steadyState {
		il.rebasePacketLocked(p)
	} else {
		if p.Type == PacketVideo {
			il.receivedVideo = true
		} else {
			il.receivedAudio = true
		}
	}

	// 5. Ordered insert.
	il.insertLocked(p)

	// 6. Track high-water marks.
	if p.Type == PacketVideo {
		if p.DTSUsec > il.highestVideoUsec {
			il.highestVideoUsec = p.DTSUsec
		}
	} else if p.DTSUsec > il.highestAudioUsec {
		il.highestAudioUsec = p.DTSUsec
	}

	// 7. Initialization transition.
	if !il.initialized && il.receivedVideo && il.receivedAudio {
		il.tryInitializeLocked()
	}

	// 8. Emit.
	il.emitReadyLocked()
}

func (il *Interleaver) dropAudioBelowLocked(dtsUsec int64) {
	kept := il.packets[:0]
	for _, p := range il.packets {
		if p.Type == PacketAudio && p.DTSUsec < dtsUsec {
			continue
		}
		kept = append(kept, p)
	}
	il.packets = kept
}

func (il *Interleaver) offsetForLocked(p *Packet) int64 {
	if p.Type == PacketVideo {
		return il.videoOffset
	}
	return il.audioOffsets[p.TrackIdx]
}

func (il *Interleaver) rebasePacketLocked(p *Packet) {
	off := il.offsetForLocked(p)
	p.PTS -= off
	p.SetDTS(p.DTS - off)
}

// insertLocked inserts at the leftmost position where new.DTSUsec <
// cur.DTSUsec, with video placed before audio at equal DTSUsec.
func (il *Interleaver) insertLocked(p *Packet) {
	i := 0
	for ; i < len(il.packets); i++ {
		cur := il.packets[i]
		if p.DTSUsec < cur.DTSUsec {
			break
		}
		if p.DTSUsec == cur.DTSUsec && p.Type == PacketVideo && cur.Type == PacketAudio {
			break
		}
	}
	il.packets = append(il.packets, nil)
	copy(il.packets[i+1:], il.packets[i:])
	il.packets[i] = p
}

func (il *Interleaver) firstVideoIdxLocked() int {
	for i, p := range il.packets {
		if p.Type == PacketVideo {
			return i
		}
	}
	return -1
}

func (il *Interleaver) firstAudioIdxLocked(track int) int {
	for i, p := range il.packets {
		if p.Type == PacketAudio && p.TrackIdx == track {
			return i
		}
	}
	return -1
}

// tryInitializeLocked attempts the first-both-streams alignment: prune
// whichever leading packets can't be reconciled, then fix the
// per-track rebase offsets from whatever remains.
func (il *Interleaver) tryInitializeLocked() {
	videoFirstIdx := il.firstVideoIdxLocked()
	if videoFirstIdx < 0 {
		il.receivedVideo = false
		return
	}
	videoFirst := il.packets[videoFirstIdx]

	tracks := il.audioTracks
	if len(tracks) == 0 {
		tracks = []int{0}
	}
	audioFirstIdx := make(map[int]int, len(tracks))
	for _, t := range tracks {
		idx := il.firstAudioIdxLocked(t)
		if idx < 0 {
			// A bound track has produced nothing yet: abort, retry once
			// it catches up.
			il.receivedAudio = false
			return
		}
		audioFirstIdx[t] = idx
	}

	var maxAbsDiff int64
	lastFirstIdx := videoFirstIdx
	closestTrack, closestIdx, closestAbsDiff := -1, -1, int64(-1)
	for t, idx := range audioFirstIdx {
		diff := il.packets[idx].DTSUsec - videoFirst.DTSUsec
		if diff < 0 {
			diff = -diff
		}
		if diff > maxAbsDiff {
			maxAbsDiff = diff
		}
		if idx > lastFirstIdx {
			lastFirstIdx = idx
		}
		if closestAbsDiff == -1 || diff < closestAbsDiff {
			closestAbsDiff = diff
			closestTrack, closestIdx = t, idx
		}
	}

	videoFrameUsec := videoFirst.TB.FrameUsec()

	if maxAbsDiff > videoFrameUsec {
		// Discard everything up to and including the last of the
		// first-per-track indices.
		il.packets = append([]*Packet(nil), il.packets[lastFirstIdx+1:]...)
	} else {
		// Closest pair: keep from the earlier of video_first and the
		// closest audio packet onward.
		idx := videoFirstIdx
		if closestIdx >= 0 && closestIdx < idx {
			idx = closestIdx
		}
		_ = closestTrack
		il.packets = append([]*Packet(nil), il.packets[idx:]...)
	}

	videoFirstIdx = il.firstVideoIdxLocked()
	if videoFirstIdx < 0 {
		il.receivedVideo = false
		return
	}
	haveAllAudio := true
	newAudioFirst := make(map[int]*Packet, len(tracks))
	for _, t := range tracks {
		idx := il.firstAudioIdxLocked(t)
		if idx < 0 {
			haveAllAudio = false
			break
		}
		newAudioFirst[t] = il.packets[idx]
	}
	if !haveAllAudio {
		il.receivedAudio = false
		return
	}

	// Set offsets.
	il.videoOffset = il.packets[videoFirstIdx].PTS
	for t, p := range newAudioFirst {
		il.audioOffsets[t] = p.DTS
	}

	// Rebase existing buffer and re-sort (offsets differ per track so
	// insertion order may change).
	for _, p := range il.packets {
		il.rebasePacketLocked(p)
	}
	resorted := append([]*Packet(nil), il.packets...)
	il.packets = il.packets[:0]
	for _, p := range resorted {
		il.insertLocked(p)
	}

	// Rebase running high-water marks. Recomputing from the rebased
	// buffer sidesteps the ambiguity of which track's offset should
	// apply to the aggregate per-type high-water mark when multiple
	// audio tracks have distinct offsets.
	il.highestVideoUsec = 0
	il.highestAudioUsec = 0
	for _, p := range il.packets {
		if p.Type == PacketVideo {
			if p.DTSUsec > il.highestVideoUsec {
				il.highestVideoUsec = p.DTSUsec
			}
		} else if p.DTSUsec > il.highestAudioUsec {
			il.highestAudioUsec = p.DTSUsec
		}
	}

	il.initialized = true
}

// emitReadyLocked pops and emits every buffered packet that is provably
// safe to release: one whose DTSUsec is no longer at risk of being
// overtaken by a later packet of the opposite type.
func (il *Interleaver) emitReadyLocked() {
	for len(il.packets) > 0 {
		head := il.packets[0]
		otherType := PacketAudio
		if head.Type == PacketAudio {
			otherType = PacketVideo
		}
		safe := false
		for _, p := range il.packets[1:] {
			if p.Type == otherType && p.DTSUsec > head.DTSUsec {
				safe = true
				break
			}
		}
		if !safe {
			return
		}
		il.packets = il.packets[1:]
		if head.Type == PacketVideo && il.onVideoEmit != nil {
			il.onVideoEmit()
		}
		if il.captions != nil {
			il.captions.injectCaption(head)
		}
		if il.emit != nil {
			il.emit(head)
		}
	}
}
