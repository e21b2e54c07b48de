package action

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	ErrCapacityExceeded = errors.New("sequence capacity exceeded")
	ErrSlotOutOfRange   = errors.New("sequence slot out of range")
)

// Sequence is a fixed-capacity buffer of actions. It is appended to while
// being built and may be patched in place afterwards.
type Sequence struct {
	name   string
	slots  []Action
	total  int
	labels map[string]int
	dirty  bool
}

func NewSequence(name string, capacity int) *Sequence {
	return &Sequence{
		name:   name,
		slots:  make([]Action, capacity),
		labels: make(map[string]int),
	}
}

func (s *Sequence) Name() string { return s.name }

// Len returns total_actions, the number of populated slots.
func (s *Sequence) Len() int { return s.total }

func (s *Sequence) Cap() int { return len(s.slots) }

// Dirty reports whether any slot was overwritten since the sequence was built.
func (s *Sequence) Dirty() bool { return s.dirty }

// Append adds a to the end of the sequence.
func (s *Sequence) Append(a Action) error {
	if s.total >= len(s.slots) {
		return fmt.Errorf("%s: appending step %d: %w (capacity %d)", s.name, s.total, ErrCapacityExceeded, len(s.slots))
	}
	s.slots[s.total] = a
	s.total++
	return nil
}

// Mark labels the most recently appended slot.
func (s *Sequence) Mark(label string) {
	if s.total > 0 {
		s.labels[label] = s.total - 1
	}
}

// Slot returns the index carrying label.
func (s *Sequence) Slot(label string) (int, bool) {
	i, ok := s.labels[label]
	return i, ok
}

func (s *Sequence) At(i int) (Action, bool) {
	if i < 0 || i >= s.total {
		return nil, false
	}
	return s.slots[i], true
}

// Set overwrites slot i.
func (s *Sequence) Set(i int, a Action) error {
	if i < 0 || i >= s.total {
		return fmt.Errorf("%s: set slot %d of %d: %w", s.name, i, s.total, ErrSlotOutOfRange)
	}
	s.slots[i] = a
	s.dirty = true
	return nil
}

// Splice overwrites the len(patch) slots immediately preceding end, so the
// last patch action lands at end-1.
func (s *Sequence) Splice(end int, patch []Action) error {
	start := end - len(patch)
	if start < 0 || end > s.total {
		return fmt.Errorf("%s: splice %d slots before %d (total %d): %w", s.name, len(patch), end, s.total, ErrSlotOutOfRange)
	}
	copy(s.slots[start:end], patch)
	s.dirty = true
	return nil
}

// Actions returns a copy of the populated slots.
func (s *Sequence) Actions() []Action {
	out := make([]Action, s.total)
	copy(out, s.slots[:s.total])
	return out
}

// Entry is the serializable view of one slot.
type Entry struct {
	Step int    `yaml:"step" json:"step"`
	Kind Kind   `yaml:"kind" json:"kind"`
	Spec Action `yaml:"spec" json:"spec"`
}

type Snapshot struct {
	Name     string  `yaml:"name" json:"name"`
	Total    int     `yaml:"total" json:"total"`
	Capacity int     `yaml:"capacity" json:"capacity"`
	Patched  bool    `yaml:"patched" json:"patched"`
	Steps    []Entry `yaml:"steps" json:"steps"`
}

func (s *Sequence) Snapshot() Snapshot {
	steps := make([]Entry, s.total)
	for i := 0; i < s.total; i++ {
		steps[i] = Entry{Step: i, Kind: s.slots[i].Kind(), Spec: s.slots[i]}
	}
	return Snapshot{
		Name:     s.name,
		Total:    s.total,
		Capacity: len(s.slots),
		Patched:  s.dirty,
		Steps:    steps,
	}
}

func (s *Sequence) MarshalYAML() (interface{}, error) {
	return s.Snapshot(), nil
}

// YAML renders the sequence as a YAML document.
func (s *Sequence) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
