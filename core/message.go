package core

import (
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the model conversation. Image holds the base64
// screenshot payload for the newest user turn only; older turns must have
// it stripped before the next step begins.
type Message struct {
	Role  Role
	Text  string
	Image string // base64 PNG, empty when absent
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

func NewUserMessage(text, imageBase64 string) Message {
	return Message{Role: RoleUser, Text: text, Image: imageBase64}
}

func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// WithoutImage returns a copy of the message with the image payload removed.
func (m Message) WithoutImage() Message {
	m.Image = ""
	return m
}

// ModelResponse is the outcome of one model call. Immutable after construction.
type ModelResponse struct {
	Thinking string
	Action   string
	Raw      string

	// Timing marks, zero when the stream produced no tokens.
	TimeToFirstToken  time.Duration
	TimeToThinkingEnd time.Duration
	TotalTime         time.Duration
}

// ParsedAction is the decoded form of a model's action string. The
// "_metadata" key discriminates "finish" from a concrete "do" operation;
// remaining keys are free-form parameters.
type ParsedAction map[string]any

const metadataKey = "_metadata"

// IsFinish reports whether the action terminates the task.
func (a ParsedAction) IsFinish() bool {
	v, _ := a[metadataKey].(string)
	return v == "finish"
}

// Name returns the operation name ("Tap", "Swipe", ...) for do-actions.
func (a ParsedAction) Name() string {
	v, _ := a["action"].(string)
	return v
}

// Message returns the completion message carried by a finish action.
func (a ParsedAction) Message() string {
	v, _ := a["message"].(string)
	return v
}

// FinishAction builds a synthetic finish action carrying the given message.
// Used when the model's action string cannot be parsed.
func FinishAction(message string) ParsedAction {
	return ParsedAction{metadataKey: "finish", "message": message}
}

// StepResult is the outcome of one perceive→request→parse→execute cycle.
type StepResult struct {
	Success  bool
	Finished bool
	Action   ParsedAction // nil when the model call itself failed
	Thinking string
	Message  string
}

// ActionResult is what the device reports back after executing an action.
type ActionResult struct {
	Success      bool
	ShouldFinish bool
	Message      string
}

// Screenshot is a single captured frame from the device.
type Screenshot struct {
	Width      int
	Height     int
	Base64Data string
}

// AppInfo describes the foreground application.
type AppInfo struct {
	PackageName  string
	ActivityName string
}

func (a AppInfo) String() string {
	if a.ActivityName == "" {
		return a.PackageName
	}
	return fmt.Sprintf("%s/%s", a.PackageName, a.ActivityName)
}
