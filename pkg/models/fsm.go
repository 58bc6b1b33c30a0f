package models

// State is one node of a StateMachine.
type State struct {
	Name        string   `json:"name" yaml:"name"`
	Scenario    string   `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Instruction string   `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	NextStates  []string `json:"next_states,omitempty" yaml:"next_states,omitempty"`
}

// StateMachine is the FSM governing which states a turn may move through.
// A Setting with a nil/empty StateMachine falls back to the dynamic
// "New-State Agent" path rather than candidate enumeration.
type StateMachine struct {
	States     []State  `json:"states" yaml:"states"`
	FreeStates []string `json:"free_states,omitempty" yaml:"free_states,omitempty"`
	EntryState string   `json:"entry_state,omitempty" yaml:"entry_state,omitempty"`
}

// Get returns the named state, or false if it does not exist.
func (m *StateMachine) Get(name string) (State, bool) {
	if m == nil {
		return State{}, false
	}
	for _, s := range m.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// Entry returns the entry state name: the configured EntryState, or the
// first declared state if none was set.
func (m *StateMachine) Entry() string {
	if m == nil || len(m.States) == 0 {
		return ""
	}
	if m.EntryState != "" {
		return m.EntryState
	}
	return m.States[0].Name
}

// NextCandidates returns the set of state names reachable from current:
// current's own next_states plus every free_state, deduplicated. An empty
// or unknown current state instead yields every free state followed by
// every other declared state not marked free, in declaration order.
func (m *StateMachine) NextCandidates(current string) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	state, ok := m.Get(current)
	if ok {
		for _, n := range state.NextStates {
			add(n)
		}
		for _, n := range m.FreeStates {
			add(n)
		}
		return out
	}

	for _, n := range m.FreeStates {
		add(n)
	}
	for _, s := range m.States {
		add(s.Name)
	}
	return out
}

// Validate checks the FSM invariants: every name referenced by next_states,
// free_states, or entry_state exists among states, and state names are
// unique.
func (m *StateMachine) Validate() error {
	if m == nil || len(m.States) == 0 {
		return nil
	}

	names := make(map[string]bool, len(m.States))
	for _, s := range m.States {
		if s.Name == "" {
			return errStateNameEmpty
		}
		if names[s.Name] {
			return errStateNameDup
		}
		names[s.Name] = true
	}

	for _, s := range m.States {
		for _, next := range s.NextStates {
			if !names[next] {
				return errUnknownState
			}
		}
	}
	for _, free := range m.FreeStates {
		if !names[free] {
			return errUnknownFreeState
		}
	}
	if m.EntryState != "" && !names[m.EntryState] {
		return errUnknownEntry
	}
	return nil
}
