package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// ErrInvalidRole is returned for roles outside the closed set.
var ErrInvalidRole = errors.New("agent: invalid role")

// Role identifies the sender of a Message.
type Role string

const (
	// RoleSystem carries instructions and context.
	RoleSystem Role = "system"

	// RoleUser carries operator input.
	RoleUser Role = "user"

	// RoleAgent carries the agent's plans and reflections.
	RoleAgent Role = "agent"

	// RoleTool carries tool results.
	RoleTool Role = "tool"
)

// String returns the role name.
func (r Role) String() string { return string(r) }

// IsValid reports whether r is one of the four defined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAgent, RoleTool:
		return true
	default:
		return false
	}
}

// ParseRole maps a case-insensitive name to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Message is one unit of communication in an agent transcript. Content is
// always present, though it may be empty.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message, rejecting unknown roles.
func NewMessage(role Role, content string) (Message, error) {
	if !role.IsValid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}, nil
}

// WithMetadata returns a copy of m with metadata merged in. Values must be
// plain JSON.
func (m Message) WithMetadata(md map[string]any) (Message, error) {
	if err := artifact.ValidateValue(md); err != nil {
		return m, fmt.Errorf("metadata: %w", err)
	}
	merged := make(map[string]any, len(m.Metadata)+len(md))
	for k, v := range m.Metadata {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	m.Metadata = merged
	return m, nil
}

func mustMessage(role Role, content string) Message {
	m, err := NewMessage(role, content)
	if err != nil {
		panic(err)
	}
	return m
}
