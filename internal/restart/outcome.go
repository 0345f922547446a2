package restart

// Phase is one of the two ordered stages of a restart.
type Phase string

const (
	PhaseSuspend Phase = "suspend"
	PhaseResume  Phase = "resume"
)

// PhaseOutcome is the result of one retry-wrapped phase.
type PhaseOutcome struct {
	Phase        Phase
	Confirmed    bool
	AttemptsUsed int
	// LastStatus is the last normalized status observed during the
	// phase, empty if no status query ever succeeded.
	LastStatus string
}

// Outcome is the terminal result of one restart invocation.
type Outcome struct {
	ServiceID   string
	RunID       string
	OK          bool
	FailedPhase Phase
	Message     string
	Suspend     PhaseOutcome
	Resume      PhaseOutcome
	// Skipped is set when an overlapping restart for the same service
	// was already in flight and this invocation was rejected.
	Skipped bool
}
