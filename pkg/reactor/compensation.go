package reactor

import "time"

// verdict is the compensation controller's resolution of a requested
// decision against the step's retry budget.
type verdict struct {
	decision  Decision
	delay     time.Duration
	exhausted bool
	cause     error
}

// compensator turns the decision a step asked for into the one the run
// applies.
type compensator struct {
	defaultBackoff BackoffPolicy
}

// defaultDecision is used for steps without a compensate function: retry
// while the step has a retry budget, otherwise abort.
func defaultDecision(step *Step) Decision {
	if step.MaxRetries > 0 || step.SkipOnExhaustion {
		return Retry()
	}
	return Abort()
}

// resolve applies the retry budget to a requested decision. attempt is the
// 1-based number of the attempt that just failed, so a step with
// MaxRetries n runs at most n+1 times.
func (c compensator) resolve(step *Step, attempt int, requested Decision, compErr error) verdict {
	if compErr != nil {
		return verdict{decision: Abort(), cause: compErr}
	}

	switch requested.Kind {
	case DecisionRetry:
		if attempt <= step.MaxRetries {
			return verdict{decision: Retry(), delay: c.backoff(step).Delay(attempt)}
		}
		if step.SkipOnExhaustion {
			return verdict{decision: Skip(), exhausted: true}
		}
		return verdict{decision: Abort(), exhausted: true}
	case DecisionSkip, DecisionContinue:
		return verdict{decision: requested}
	default:
		return verdict{decision: Abort()}
	}
}

func (c compensator) backoff(step *Step) BackoffPolicy {
	if step.Backoff == (BackoffPolicy{}) {
		return c.defaultBackoff
	}
	return step.Backoff
}
