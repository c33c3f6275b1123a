package dualmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/chenhg5/phone-pilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer replays canned answers; the last answer repeats forever.
type fakeStreamer struct {
	answers  []string
	err      error
	calls    int
	received [][]core.Message
}

func (f *fakeStreamer) Stream(ctx context.Context, messages []core.Message, onThinking, onAnswer func(string)) (string, error) {
	f.calls++
	f.received = append(f.received, messages)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	answer := f.answers[idx]
	if onAnswer != nil {
		onAnswer(answer)
	}
	return answer, nil
}

func TestAnalyzeTaskParsesPlan(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{
		`{"type": "plan", "summary": "post a photo", "steps": ["open app", "pick photo", "publish"], "estimated_actions": 8}`,
	}}
	d := NewDecisionModel(streamer, ModeDeep)

	plan := d.AnalyzeTask(context.Background(), "post my latest photo", nil, nil)

	assert.Equal(t, "post a photo", plan.Summary)
	assert.Equal(t, []string{"open app", "pick photo", "publish"}, plan.Steps)
	assert.Equal(t, 8, plan.EstimatedActions)
}

func TestAnalyzeTaskDegradesToSingleStepPlan(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{"I cannot produce JSON right now."}}
	d := NewDecisionModel(streamer, ModeDeep)

	plan := d.AnalyzeTask(context.Background(), "do the thing", nil, nil)

	assert.Equal(t, "do the thing", plan.Summary)
	assert.Equal(t, []string{"do the thing"}, plan.Steps)
	assert.Equal(t, 5, plan.EstimatedActions)
}

func TestAnalyzeTaskNeverFailsOnTransportError(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("network down")}
	d := NewDecisionModel(streamer, ModeFast)

	plan := d.AnalyzeTask(context.Background(), "task", nil, nil)
	assert.Equal(t, "task", plan.Summary)
	assert.Equal(t, []string{"task"}, plan.Steps)
}

func TestAnalyzeTaskSeedsHistory(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{`{"type": "plan", "summary": "s"}`}}
	d := NewDecisionModel(streamer, ModeDeep)

	d.AnalyzeTask(context.Background(), "my task", nil, nil)

	history := d.History()
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleSystem, history[0].Role)
	assert.Equal(t, core.RoleUser, history[1].Role)
	assert.Contains(t, history[1].Text, "my task")
	assert.Equal(t, core.RoleAssistant, history[2].Role)
}

func TestMakeDecisionTypes(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		action   string
		finished bool
	}{
		{
			name:     "decision",
			reply:    `{"type": "decision", "action": "tap", "target": "the login button", "reasoning": "need to sign in"}`,
			action:   "tap",
			finished: false,
		},
		{
			name:     "finish",
			reply:    `{"type": "finish", "message": "task complete"}`,
			action:   "finish",
			finished: true,
		},
		{
			name:     "bare object",
			reply:    `{"action": "input", "target": "search box", "content": "weather"}`,
			action:   "input",
			finished: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			streamer := &fakeStreamer{answers: []string{tc.reply}}
			d := NewDecisionModel(streamer, ModeDeep)

			decision, err := d.MakeDecision(context.Background(), "home screen with login button", "", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.action, decision.Action)
			assert.Equal(t, tc.finished, decision.Finished)
		})
	}
}

func TestMakeDecisionUnparsableBecomesUnknown(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{"free-form reply with no structure"}}
	d := NewDecisionModel(streamer, ModeDeep)

	decision, err := d.MakeDecision(context.Background(), "some screen", "", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "unknown", decision.Action)
	assert.Equal(t, "free-form reply with no structure", decision.Reasoning)
}

func TestMakeDecisionTransportErrorSurfaces(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("boom")}
	d := NewDecisionModel(streamer, ModeDeep)

	_, err := d.MakeDecision(context.Background(), "screen", "", nil, nil)
	assert.Error(t, err)
}

func TestMakeDecisionHistoryGrowsRegardlessOfParse(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{
		`{"type": "plan", "summary": "s"}`,
		"garbage reply",
		`{"type": "decision", "action": "tap", "target": "x"}`,
	}}
	d := NewDecisionModel(streamer, ModeDeep)
	d.AnalyzeTask(context.Background(), "task", nil, nil)

	_, err := d.MakeDecision(context.Background(), "screen one", "", nil, nil)
	require.NoError(t, err)
	_, err = d.MakeDecision(context.Background(), "screen two", "", nil, nil)
	require.NoError(t, err)

	// 3 seed messages + 2 × (user turn + raw assistant reply).
	assert.Len(t, d.History(), 7)
}

func TestGenerateContentStripsWrappers(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "a nice caption", "a nice caption"},
		{"quoted", `"a nice caption"`, "a nice caption"},
		{"fenced", "```\na nice caption\n```", "a nice caption"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			streamer := &fakeStreamer{answers: []string{tc.reply}}
			d := NewDecisionModel(streamer, ModeDeep)

			content, err := d.GenerateContent(context.Background(), "comment", "a photo of a sunset", "", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, content)
		})
	}
}

func TestResetClearsHistory(t *testing.T) {
	streamer := &fakeStreamer{answers: []string{`{"type": "plan", "summary": "s"}`}}
	d := NewDecisionModel(streamer, ModeDeep)
	d.AnalyzeTask(context.Background(), "task", nil, nil)
	require.NotEmpty(t, d.History())

	d.Reset()
	assert.Empty(t, d.History())
}
