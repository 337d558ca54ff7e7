package boundary

import "sync"

// ErrorChannel holds the last error message of one session. Successful calls
// do not clear it.
type ErrorChannel struct {
	mu  sync.Mutex
	msg string
}

func (c *ErrorChannel) Set(msg string) {
	c.mu.Lock()
	c.msg = msg
	c.mu.Unlock()
}

// Last returns the most recent error message, or "" when none was recorded.
func (c *ErrorChannel) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg
}

// Clear forgets the recorded message.
func (c *ErrorChannel) Clear() { c.Set("") }
