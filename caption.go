package output

import "sync"

// CEA608MaxSize is the reserved CEA-608/708 payload size.
const CEA608MaxSize = 93 * 3 // matches libobs's CEA608_MAX_SIZE

const defaultDisplayDurationSec = 2.0

// textCaption is one queued text line.
type textCaption struct {
	text            string
	displayDuration float64 // seconds
}

// triple is one raw CEA-708 cc_data entry: [cc_type_byte, hi, lo].
type triple [3]byte

// CaptionQueue buffers text lines and raw CEA-708 triples behind one
// mutex, and paces SEI emission against video frame timestamps.
//
// lastRawTimestamp is a per-CaptionQueue (hence per-Output) field rather
// than a package-level global. buildSEI does not consult it: raw triples
// are not paced, and every queued triple is drained on the next eligible
// video frame.
type CaptionQueue struct {
	mu sync.Mutex

	text []textCaption
	raw  []triple

	captionTimestamp float64 // seconds; when the head text caption finishes displaying
	lastRawTimestamp float64 // seconds; not read by buildSEI (see above)
}

func NewCaptionQueue() *CaptionQueue { return &CaptionQueue{} }

// PushText enqueues a text line. duration <= 0 selects the default of 2.0s.
func (q *CaptionQueue) PushText(text string, duration float64) {
	if duration <= 0 {
		duration = defaultDisplayDurationSec
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.text = append(q.text, textCaption{text: text, displayDuration: duration})
}

// PushTriple enqueues one raw 3-byte CEA-708 cc_data entry.
func (q *CaptionQueue) PushTriple(b0, b1, b2 byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.raw = append(q.raw, triple{b0, b1, b2})
}

// buildSEI checks, in order, raw CEA-708 triples and then queued text;
// raw triples win over text. Returns nil if no caption should be emitted
// for this frame. frameTs is pts*num/den in seconds.
func (q *CaptionQueue) buildSEI(frameTs float64) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.raw) > 0 {
		return q.drainRawLocked()
	}
	if len(q.text) > 0 && q.captionTimestamp <= frameTs {
		return q.emitTextLocked(frameTs)
	}
	return nil
}

// drainRawLocked builds one CEA-708 popon frame from the queued raw
// triples, keeping only CEA-608 entries (type bits zero) and filtering out
// padding, zero-data, and bad-parity entries.
func (q *CaptionQueue) drainRawLocked() []byte {
	var pairs []byte
	for _, t := range q.raw {
		typeBits := t[0] & 0x03
		hi, lo := t[1], t[2]
		if typeBits != 0 {
			continue // CEA-608 only
		}
		if hi == 0x80 && lo == 0x80 {
			continue // padding
		}
		if hi == 0 && lo == 0 {
			continue // zero data
		}
		if !parityValid(hi) || !parityValid(lo) {
			continue
		}
		pairs = append(pairs, typeBits, hi, lo)
	}
	q.raw = nil
	if len(pairs) == 0 {
		return nil
	}
	return buildCEA708Popon(pairs)
}

// emitTextLocked renders the head text caption as a CEA-708 popon frame,
// pops it, and advances captionTimestamp by its display duration.
func (q *CaptionQueue) emitTextLocked(frameTs float64) []byte {
	head := q.text[0]
	q.text = q.text[1:]
	q.captionTimestamp = frameTs + head.displayDuration
	return buildCEA708Text(head.text)
}

// parityValid reports whether b has odd parity in its low 7 bits with
// the high bit as the parity bit, the classic EIA-608 parity check.
func parityValid(b byte) bool {
	ones := 0
	for i := 0; i < 8; i++ {
		if b&(1<<i) != 0 {
			ones++
		}
	}
	return ones%2 == 1
}

// buildCEA708Popon wraps pre-filtered (type, hi, lo) triples into a
// minimal CEA-708 "pop-on" cc_data payload.
func buildCEA708Popon(pairs []byte) []byte {
	out := make([]byte, 0, len(pairs)+3)
	out = append(out, 0x80, 0x80) // cc_count header placeholder, GA94 marker bits
	out = append(out, pairs...)
	return out
}

// buildCEA708Text renders a text line into the same minimal cc_data
// payload shape as buildCEA708Popon, one EIA-608 standard character code
// pair per two bytes of text (simplified transport; real caption
// rendering/wrapping is out of scope).
func buildCEA708Text(text string) []byte {
	out := make([]byte, 0, len(text)+2)
	out = append(out, 0x80, 0x80)
	out = append(out, []byte(text)...)
	return out
}

// seiStartCode is the 4-byte Annex-B start code wrapping the SEI message.
var seiStartCode = []byte{0, 0, 0, 1}

// seiNALType is user_data_registered_itu_t_t35 (H.264/H.265 SEI payload
// type 4).
const seiNALType = 4

// buildSEINAL wraps a CEA-708 payload as one SEI NAL unit: start code,
// NAL header, SEI payload type/size, the payload itself padded/truncated
// to CEA608MaxSize, and an rbsp trailing bit.
func buildSEINAL(payload []byte) []byte {
	reserved := make([]byte, CEA608MaxSize)
	copy(reserved, payload)

	nal := make([]byte, 0, len(seiStartCode)+2+2+len(reserved)+1)
	nal = append(nal, seiStartCode...)
	nal = append(nal, 0x06) // NAL unit header: type 6 (SEI), H.264
	nal = append(nal, seiNALType)
	// payloadSize: one 0xFF byte per full 255, then the remainder.
	size := len(reserved)
	for ; size >= 255; size -= 255 {
		nal = append(nal, 0xFF)
	}
	nal = append(nal, byte(size))
	nal = append(nal, reserved...)
	nal = append(nal, 0x80) // rbsp_trailing_bits
	return nal
}

// injectCaption only touches video packets with priority <= 1. The SEI
// is appended after the packet's existing NAL payload (an append-after-NAL
// placement rather than a splice after AUD/SPS/PPS — a known muxer-
// conformance caveat). The packet's data buffer is reallocated into a
// fresh owned slice and the old buffer is dropped.
func (q *CaptionQueue) injectCaption(pkt *Packet) {
	if pkt.Type != PacketVideo || pkt.Priority > 1 {
		return
	}
	frameTs := float64(pkt.PTS) * float64(pkt.TB.Num) / float64(pkt.TB.Den)
	sei := q.buildSEI(frameTs)
	if sei == nil {
		return
	}
	nal := buildSEINAL(sei)
	out := make([]byte, len(pkt.Data)+len(nal))
	copy(out, pkt.Data)
	copy(out[len(pkt.Data):], nal)
	pkt.Data = out
}
