package core

import "context"

// Device abstracts a controllable phone, local (ADB) or remote.
type Device interface {
	Serial() string
	GetScreenshot(ctx context.Context) (Screenshot, error)
	GetCurrentApp(ctx context.Context) (AppInfo, error)
	// Execute performs a parsed action against the screen of the given
	// dimensions. Semantic validation of the action is the device's job.
	Execute(ctx context.Context, action ParsedAction, width, height int) (ActionResult, error)
	Close() error
}

// ModelCaller is the chat-completion transport consumed by the agent.
// The call blocks until the stream is drained; onChunk receives thinking
// fragments in arrival order on the caller's goroutine.
type ModelCaller interface {
	Request(ctx context.Context, messages []Message, onChunk func(string)) (ModelResponse, error)
}
