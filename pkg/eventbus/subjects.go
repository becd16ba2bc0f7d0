package eventbus

import "fmt"

const (
	// SubjectPrefix is the root of every reactor lifecycle subject.
	SubjectPrefix = "reactor"

	// AllSubjects matches every lifecycle subject.
	AllSubjects = SubjectPrefix + ".>"
)

// Domain identifies run or step lifecycle events.
type Domain string

const (
	DomainRun  Domain = "run"
	DomainStep Domain = "step"
)

// Lifecycle transitions published on the bus.
const (
	TransitionStarted     = "started"
	TransitionFinished    = "finished"
	TransitionDispatched  = "dispatched"
	TransitionCompleted   = "completed"
	TransitionErrored     = "errored"
	TransitionCompensated = "compensated"
	TransitionUndone      = "undone"
	TransitionUndoFailed  = "undo_failed"
)

// Subject returns the canonical subject for a domain transition, for
// example "reactor.step.completed".
func Subject(domain Domain, transition string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, sanitizeSegment(string(domain)), sanitizeSegment(transition))
}

// StepSubject returns the subject of a step transition.
func StepSubject(transition string) string {
	return Subject(DomainStep, transition)
}

// RunSubject returns the subject of a run transition.
func RunSubject(transition string) string {
	return Subject(DomainRun, transition)
}

// DomainWildcardSubject returns the wildcard subject for a domain.
func DomainWildcardSubject(domain Domain) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(string(domain)))
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
