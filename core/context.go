package core

// Context is the ordered, append-only message log sent to the model on
// every step. It is owned by exactly one Agent and must not be mutated by
// more than one caller at a time.
type Context struct {
	messages []Message
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) Append(m Message) {
	c.messages = append(c.messages, m)
}

// ReplaceLast swaps the most recent message. Used to strip the screenshot
// from the just-sent user turn once the model has consumed it, so the
// payload does not grow unbounded across a long task.
func (c *Context) ReplaceLast(m Message) {
	if len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1] = m
}

// Last returns the most recent message and whether one exists.
func (c *Context) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Context) Len() int { return len(c.messages) }

// Snapshot returns a copy of the log.
func (c *Context) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Context) Reset() {
	c.messages = nil
}
