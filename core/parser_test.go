package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseTaggedReply(t *testing.T) {
	thinking, action := ParseResponse(
		"<think>The settings icon is at the top right.</think><answer>do(action=\"Tap\", element=[980, 120])</answer>")

	assert.Equal(t, "The settings icon is at the top right.", thinking)
	assert.Equal(t, `do(action="Tap", element=[980, 120])`, action)
}

func TestParseResponseUnterminatedAnswer(t *testing.T) {
	thinking, action := ParseResponse(
		`<think>almost done</think><answer>finish(message="opened the app"`)

	assert.Equal(t, "almost done", thinking)
	assert.Equal(t, `finish(message="opened the app"`, action)
}

func TestParseResponseLineScan(t *testing.T) {
	raw := "I should tap the search box first.\nThen I can type the query.\n" +
		`do(action="Tap", element=[540, 200])` + "\nsome trailing commentary"

	thinking, action := ParseResponse(raw)

	assert.Equal(t, `do(action="Tap", element=[540, 200])`, action)
	// Thinking is everything before the action line; trailing lines are dropped.
	assert.Equal(t, "I should tap the search box first.\nThen I can type the query.", thinking)
}

func TestParseResponseLineScanPicksLastCall(t *testing.T) {
	raw := `do(action="Back")` + "\nactually no, better:\n" + `do(action="Home")`

	thinking, action := ParseResponse(raw)

	assert.Equal(t, `do(action="Home")`, action)
	assert.Equal(t, `do(action="Back")`+"\nactually no, better:", thinking)
}

func TestParseResponseIsTotal(t *testing.T) {
	cases := map[string]string{
		"prose":          "just some prose with no action at all",
		"thoughts only":  "<think>only thoughts</think> leftover text",
		"whitespace":     "   ",
		"empty":          "",
		"tags mid-text":  "abc <answer> def",
		"nested markers": "<think><think></think></think>",
	}
	for name, raw := range cases {
		assert.NotPanics(t, func() { ParseResponse(raw) }, name)
	}

	// Non-empty residual input always yields a non-empty action.
	_, action := ParseResponse("just some prose with no action at all")
	assert.Equal(t, "just some prose with no action at all", action)
}

func TestParseResponseFallbackRemovesThinkingOnce(t *testing.T) {
	thinking, action := ParseResponse("<think>plan</think>residual output")

	assert.Equal(t, "plan", thinking)
	assert.Equal(t, "<think></think>residual output", action)
}

func TestParseActionDo(t *testing.T) {
	action, err := ParseAction(`do(action="Tap", element=[540, 960])`)
	require.NoError(t, err)

	assert.Equal(t, "Tap", action.Name())
	assert.False(t, action.IsFinish())
	assert.Equal(t, []any{float64(540), float64(960)}, action["element"])
}

func TestParseActionFinish(t *testing.T) {
	action, err := ParseAction(`finish(message="task is done")`)
	require.NoError(t, err)

	assert.True(t, action.IsFinish())
	assert.Equal(t, "task is done", action.Message())
}

func TestParseActionQuotedCommasAndEscapes(t *testing.T) {
	action, err := ParseAction(`do(action="Type", text="hello, \"world\"")`)
	require.NoError(t, err)

	assert.Equal(t, `hello, "world"`, action["text"])
}

func TestParseActionNestedLists(t *testing.T) {
	action, err := ParseAction(`do(action="Swipe", start=[100, 200], end=[100, 800])`)
	require.NoError(t, err)

	assert.Equal(t, []any{float64(100), float64(200)}, action["start"])
	assert.Equal(t, []any{float64(100), float64(800)}, action["end"])
}

func TestParseActionPythonLiterals(t *testing.T) {
	action, err := ParseAction(`do(action="Wait", blocking=True, timeout=None, retries=3)`)
	require.NoError(t, err)

	assert.Equal(t, true, action["blocking"])
	assert.Nil(t, action["timeout"])
	assert.Equal(t, float64(3), action["retries"])
}

func TestParseActionRejectsMalformed(t *testing.T) {
	cases := []string{
		"not a call at all",
		`do(action="Tap"`,                     // missing close paren
		`do(action="Tap", element=[540, 960)`, // unbalanced bracket
		`do(action="Tap, element=[1,2])`,      // unterminated string
		`tap(element=[1, 2])`,                 // unknown call name
	}
	for _, raw := range cases {
		_, err := ParseAction(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestFinishActionSynthesizesMessage(t *testing.T) {
	action := FinishAction("whatever the model said")

	assert.True(t, action.IsFinish())
	assert.Equal(t, "whatever the model said", action.Message())
}
