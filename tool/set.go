package tool

import (
	"fmt"
	"sort"
)

// Set is a name-indexed collection of tools.
type Set struct {
	tools map[string]Tool
}

// NewSet builds a set from tools. Duplicate names are rejected.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers t.
func (s *Set) Add(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool must have a name")
	}
	if _, dup := s.tools[t.Name()]; dup {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	s.tools[t.Name()] = t
	return nil
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.tools))
	for n := range s.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.tools) }
