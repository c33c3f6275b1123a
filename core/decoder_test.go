package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectChunks(chunks *[]string) func(string) {
	return func(s string) { *chunks = append(*chunks, s) }
}

func TestDecoderSplitsThinkingFromAction(t *testing.T) {
	var chunks []string
	d := NewStreamDecoder(nil, collectChunks(&chunks), time.Now())

	d.Feed("I need to tap the button.\n")
	d.Feed(`do(action="Tap", element=[100, 200])`)

	resp := d.Finish()

	assert.Equal(t, "I need to tap the button.", resp.Thinking)
	assert.Equal(t, `do(action="Tap", element=[100, 200])`, resp.Action)
	// Only the reasoning text reached the live callback.
	assert.Equal(t, "I need to tap the button.\n", strings.Join(chunks, ""))
}

func TestDecoderMarkerSplitAcrossFragments(t *testing.T) {
	// Feed the same reply one byte at a time: the marker must still be
	// detected and no marker bytes may leak into the thinking callbacks.
	raw := "thinking text\n" + `finish(message="done")`

	var chunks []string
	d := NewStreamDecoder(nil, collectChunks(&chunks), time.Now())
	for i := 0; i < len(raw); i++ {
		d.Feed(raw[i : i+1])
	}

	resp := d.Finish()
	assert.Equal(t, "thinking text", resp.Thinking)
	assert.Equal(t, `finish(message="done")`, resp.Action)

	delivered := strings.Join(chunks, "")
	assert.NotContains(t, delivered, "finish(")
	assert.Equal(t, "thinking text\n", delivered)
}

func TestDecoderFalseMarkerPrefixIsReleased(t *testing.T) {
	// "fin" looks like the start of finish(message= but turns out to be
	// ordinary prose; it must be delivered once disambiguated.
	var chunks []string
	d := NewStreamDecoder(nil, collectChunks(&chunks), time.Now())

	d.Feed("the fin")
	d.Feed("al answer is ready\n")
	d.Feed(`do(action="Back")`)

	resp := d.Finish()
	assert.Equal(t, "the final answer is ready", resp.Thinking)
	assert.Equal(t, "the final answer is ready\n", strings.Join(chunks, ""))
}

func TestDecoderRawAccumulatesEverything(t *testing.T) {
	d := NewStreamDecoder(nil, nil, time.Now())
	d.Feed("abc")
	d.Feed(`do(action=`)
	d.Feed(`"Wait")`)

	assert.Equal(t, `abcdo(action="Wait")`, d.Raw())
}

func TestDecoderNilCallback(t *testing.T) {
	d := NewStreamDecoder(DefaultActionMarkers, nil, time.Now())
	assert.NotPanics(t, func() {
		d.Feed("text ")
		d.Feed(`finish(message="ok")`)
	})

	resp := d.Finish()
	assert.Equal(t, `finish(message="ok")`, resp.Action)
}

func TestDecoderEmptyStream(t *testing.T) {
	d := NewStreamDecoder(nil, nil, time.Now())
	resp := d.Finish()

	assert.Empty(t, resp.Thinking)
	assert.Empty(t, resp.Action)
	assert.Zero(t, resp.TimeToFirstToken)
	assert.Zero(t, resp.TimeToThinkingEnd)
}

func TestDecoderTimingMarks(t *testing.T) {
	start := time.Now()
	d := NewStreamDecoder(nil, nil, start)

	d.Feed("thinking ")
	d.Feed(`do(action="Wait")`)
	resp := d.Finish()

	require.NotZero(t, resp.TimeToFirstToken)
	require.NotZero(t, resp.TimeToThinkingEnd)
	assert.LessOrEqual(t, resp.TimeToFirstToken, resp.TimeToThinkingEnd)
	assert.LessOrEqual(t, resp.TimeToThinkingEnd, resp.TotalTime)
}

func TestDecoderEverythingAfterMarkerIsAction(t *testing.T) {
	var chunks []string
	d := NewStreamDecoder(nil, collectChunks(&chunks), time.Now())

	d.Feed(`do(action="Tap", `)
	d.Feed("element=[1, 2])")
	d.Feed(" trailing text the model kept generating")

	// Nothing after the marker reaches the callback.
	assert.Empty(t, chunks)
}
