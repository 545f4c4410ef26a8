package agent

import (
	"strings"
	"sync"
)

// Memory is a conversation buffer. When Limit is positive the oldest
// non-system messages are dropped to stay within it.
type Memory struct {
	mu       sync.Mutex
	limit    int
	messages []Message
}

// NewMemory returns a buffer holding at most limit messages (0 = unbounded).
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Add appends messages, evicting the oldest non-system entries if needed.
func (m *Memory) Add(msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msgs...)
	for m.limit > 0 && len(m.messages) > m.limit {
		idx := -1
		for i, msg := range m.messages {
			if msg.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		m.messages = append(m.messages[:idx], m.messages[idx+1:]...)
	}
}

// Messages returns a copy of the buffer.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Len returns the number of buffered messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Buffer renders the conversation as "role: content" lines.
func (m *Memory) Buffer() string {
	return Format(m.Messages())
}

// Format renders messages as "role: content" lines.
func Format(msgs []Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
