package core

import (
	"strings"
	"time"
)

// DefaultActionMarkers are the literal prefixes that signal the boundary
// between the model's reasoning text and its committed action.
var DefaultActionMarkers = []string{"finish(message=", "do(action="}

// decoderPhase tracks which side of the reasoning/action boundary the
// decoder is currently on.
type decoderPhase int

const (
	phaseReasoning decoderPhase = iota
	phaseAction
)

// StreamDecoder splits a live token stream into reasoning and action text
// without waiting for the stream to complete. Fragments are fed in arrival
// order via Feed; thinking text is delivered progressively through onChunk.
//
// The live callback stream is a best-effort preview. The authoritative
// (thinking, action) split is produced by ParseResponse over the full raw
// accumulator once the stream ends.
type StreamDecoder struct {
	markers []string
	onChunk func(string)

	phase   decoderPhase
	raw     strings.Builder
	pending strings.Builder

	start          time.Time
	firstToken     time.Duration
	thinkingEnd    time.Duration
	gotFirstToken  bool
	gotThinkingEnd bool
}

// NewStreamDecoder creates a decoder for the given marker set. onChunk may
// be nil. The start time anchors the timing marks.
func NewStreamDecoder(markers []string, onChunk func(string), start time.Time) *StreamDecoder {
	if len(markers) == 0 {
		markers = DefaultActionMarkers
	}
	return &StreamDecoder{markers: markers, onChunk: onChunk, start: start}
}

// Feed consumes one stream fragment.
func (d *StreamDecoder) Feed(fragment string) {
	if fragment == "" {
		return
	}
	d.raw.WriteString(fragment)

	if !d.gotFirstToken {
		d.gotFirstToken = true
		d.firstToken = time.Since(d.start)
	}

	if d.phase == phaseAction {
		return
	}

	d.pending.WriteString(fragment)
	buf := d.pending.String()

	for _, marker := range d.markers {
		if idx := strings.Index(buf, marker); idx >= 0 {
			d.deliver(buf[:idx])
			d.phase = phaseAction
			d.pending.Reset()
			if !d.gotThinkingEnd {
				d.gotThinkingEnd = true
				d.thinkingEnd = time.Since(d.start)
			}
			return
		}
	}

	// The buffer tail may be an incomplete marker split across fragment
	// boundaries; hold it back until the next fragment settles it.
	if hasMarkerPrefixSuffix(buf, d.markers) {
		return
	}

	d.deliver(buf)
	d.pending.Reset()
}

// hasMarkerPrefixSuffix reports whether buf ends with a strict prefix of
// any marker.
func hasMarkerPrefixSuffix(buf string, markers []string) bool {
	for _, marker := range markers {
		for i := 1; i < len(marker); i++ {
			if strings.HasSuffix(buf, marker[:i]) {
				return true
			}
		}
	}
	return false
}

func (d *StreamDecoder) deliver(text string) {
	if d.onChunk != nil && text != "" {
		d.onChunk(text)
	}
}

// Finish closes the stream and returns the authoritative response. Timing
// marks stay zero for an empty stream.
func (d *StreamDecoder) Finish() ModelResponse {
	raw := d.raw.String()
	thinking, action := ParseResponse(raw)
	return ModelResponse{
		Thinking:          thinking,
		Action:            action,
		Raw:               raw,
		TimeToFirstToken:  d.firstToken,
		TimeToThinkingEnd: d.thinkingEnd,
		TotalTime:         time.Since(d.start),
	}
}

// Raw returns the full accumulated stream text so far.
func (d *StreamDecoder) Raw() string { return d.raw.String() }
