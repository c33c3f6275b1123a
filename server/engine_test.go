package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chenhg5/phone-pilot/core"
	"github.com/chenhg5/phone-pilot/dualmodel"
	"github.com/chenhg5/phone-pilot/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDevice struct{}

func (stubDevice) Serial() string { return "stub-01" }
func (stubDevice) Close() error   { return nil }

func (stubDevice) GetScreenshot(ctx context.Context) (core.Screenshot, error) {
	return core.Screenshot{Width: 1080, Height: 1920, Base64Data: "c3R1Yg=="}, nil
}

func (stubDevice) GetCurrentApp(ctx context.Context) (core.AppInfo, error) {
	return core.AppInfo{PackageName: "com.example"}, nil
}

func (stubDevice) Execute(ctx context.Context, action core.ParsedAction, w, h int) (core.ActionResult, error) {
	if action.IsFinish() {
		return core.ActionResult{Success: true, ShouldFinish: true, Message: action.Message()}, nil
	}
	return core.ActionResult{Success: true}, nil
}

type stubModel struct {
	reply string
	err   error
}

func (m stubModel) Request(ctx context.Context, messages []core.Message, onChunk func(string)) (core.ModelResponse, error) {
	if m.err != nil {
		return core.ModelResponse{}, m.err
	}
	thinking, action := core.ParseResponse(m.reply)
	return core.ModelResponse{Thinking: thinking, Action: action, Raw: m.reply}, nil
}

// memStore records saved tasks in memory.
type memStore struct {
	mu      sync.Mutex
	records []store.TaskRecord
}

func (s *memStore) SaveTask(ctx context.Context, rec *store.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = store.NewTaskID()
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memStore) ListTasks(ctx context.Context, deviceSerial string, limit int) ([]store.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.TaskRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memStore) Close() error { return nil }

func newTestEngine(model core.ModelCaller, history store.Store) *Engine {
	agent := core.NewAgent(core.AgentConfig{MaxSteps: 5}, stubDevice{}, model, core.LangEnglish)
	return NewEngine("test-phone", stubDevice{}, agent, nil, history)
}

const finishReply = `<think>done</think><answer>finish(message="all good")</answer>`

func TestEngineRunTaskRecordsHistory(t *testing.T) {
	history := &memStore{}
	e := newTestEngine(stubModel{reply: finishReply}, history)

	msg, err := e.RunTask(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "all good", msg)
	assert.False(t, e.Busy())

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, "stub-01", rec.DeviceSerial)
	assert.Equal(t, "say hello", rec.Task)
	assert.Equal(t, string(core.StatusFinished), rec.Status)
	assert.Equal(t, "all good", rec.Message)
	assert.Equal(t, 1, rec.Steps)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

func TestEngineRejectsConcurrentTasks(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)

	e.taskMu.Lock()
	assert.True(t, e.Busy())
	_, err := e.RunTask(context.Background(), "second task")
	assert.ErrorIs(t, err, ErrBusy)
	e.taskMu.Unlock()

	assert.False(t, e.Busy())
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)
	events, cancel := e.Events().Subscribe()
	defer cancel()

	_, err := e.RunTask(context.Background(), "quick task")
	require.NoError(t, err)

	var types []dualmodel.EventType
drain:
	for {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		default:
			break drain
		}
	}

	require.NotEmpty(t, types)
	assert.Equal(t, dualmodel.EventVisionStart, types[0])
	assert.Equal(t, dualmodel.EventTaskComplete, types[len(types)-1])
}

func TestEngineModelErrorRecordedAsError(t *testing.T) {
	history := &memStore{}
	e := newTestEngine(stubModel{reply: `<think>x</think><answer>do(action="Tap", element=[1, 2])</answer>`, err: errors.New("unreachable")}, history)

	msg, err := e.RunTask(context.Background(), "task")
	require.NoError(t, err)
	assert.Contains(t, msg, "Model error")

	require.Len(t, history.records, 1)
	assert.Equal(t, string(core.StatusError), history.records[0].Status)
}

func TestEngineStatusSnapshot(t *testing.T) {
	e := newTestEngine(stubModel{reply: finishReply}, nil)

	st := e.Status()
	assert.Equal(t, "test-phone", st.Name)
	assert.Equal(t, "stub-01", st.Serial)
	assert.False(t, st.Busy)
	assert.Equal(t, string(core.StatusIdle), st.AgentStatus)

	_, err := e.RunTask(context.Background(), "task")
	require.NoError(t, err)

	st = e.Status()
	assert.Equal(t, string(core.StatusFinished), st.AgentStatus)
	assert.Equal(t, 1, st.Steps)
	assert.Empty(t, st.CurrentTask)
}
