package saga

import "fmt"

// ExecutionStatus represents the lifecycle of a saga, of its compensation sweep, or of a single stage
type ExecutionStatus int

const (
	// None indicates nothing has started yet
	None ExecutionStatus = iota
	// InProcess indicates work has started and has not reached a terminal value
	InProcess
	// Completed indicates the work finished successfully
	Completed
	// Faulted indicates the work failed
	Faulted
)

var statusNames = map[ExecutionStatus]string{
	None:      "None",
	InProcess: "InProcess",
	Completed: "Completed",
	Faulted:   "Faulted",
}

func (s ExecutionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ExecutionStatus(%d)", int(s))
}

// IsTerminal reports whether no further transition is possible
func (s ExecutionStatus) IsTerminal() bool {
	return s == Completed || s == Faulted
}

// CanTransitionTo checks if a status transition is valid
func (s ExecutionStatus) CanTransitionTo(target ExecutionStatus) bool {
	validTransitions := map[ExecutionStatus][]ExecutionStatus{
		None:      {InProcess},
		InProcess: {Completed, Faulted},
		// Terminal states
		Completed: {},
		Faulted:   {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}

	return false
}

func (s ExecutionStatus) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown execution status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ExecutionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseExecutionStatus converts a status name back to its value
func ParseExecutionStatus(name string) (ExecutionStatus, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return None, fmt.Errorf("unknown execution status %q", name)
}

// ProcessMode selects how stages run forward, and symmetrically how they are compensated
type ProcessMode int

const (
	// Sequential runs stages one at a time in registration order and compensates in reverse
	Sequential ProcessMode = iota
	// Parallel runs all stages concurrently and compensates concurrently
	Parallel
)

func (m ProcessMode) IsValid() bool {
	return m == Sequential || m == Parallel
}

func (m ProcessMode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("ProcessMode(%d)", int(m))
	}
}

func (m ProcessMode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("unknown process mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *ProcessMode) UnmarshalText(text []byte) error {
	parsed, err := ParseProcessMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseProcessMode accepts "sequential" or "parallel", case-sensitively
func ParseProcessMode(name string) (ProcessMode, error) {
	switch name {
	case "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	default:
		return Sequential, fmt.Errorf("unknown process mode %q", name)
	}
}
