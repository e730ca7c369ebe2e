// Package connectivity sequences the reachability probe and the credential
// check. The Checker performs no I/O: it tells its owner which request to
// issue next and consumes the outcomes.
package connectivity

import "github.com/ghalamif/SensorLens/internal/domain"

// Action is the request the owner must issue after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionProbe
	ActionCredentialCheck
)

func (a Action) String() string {
	switch a {
	case ActionProbe:
		return "probe"
	case ActionCredentialCheck:
		return "credential_check"
	default:
		return "none"
	}
}

const (
	MsgOfflineSkipped    = "No checks needed since Offline mode selected."
	MsgProbeStarted      = "Checking internet connection..."
	MsgProbeOK           = "Internet connection ok."
	MsgProbeFailed       = "Internet connection not ok."
	MsgCredentialStarted = "Checking to see if specified OData service can be accessed..."
	MsgCredentialOK      = "Specified OData service can be accessed ok."
	MsgCredentialFailed  = "Specified OData service could not be accessed."
	MsgChecksCompleted   = "Checks completed ok."
	errorPrefix          = "Error: "
)

// Checker is not safe for concurrent use; the coordinator owns it.
type Checker struct {
	state   domain.ConnState
	message string
	log     []string
}

func New() *Checker {
	return &Checker{}
}

// Start resets the checker and begins a new check. Offline mode passes
// immediately without issuing any request.
func (c *Checker) Start(offline bool) Action {
	c.state = domain.ConnNotStarted
	c.message = ""
	c.log = nil

	if offline {
		c.state = domain.ConnPassed
		c.message = MsgOfflineSkipped
		c.append(MsgOfflineSkipped)
		return ActionNone
	}
	c.state = domain.ConnProbeInFlight
	c.append(MsgProbeStarted)
	return ActionProbe
}

// ProbeDone records the probe outcome and always moves on to the credential
// check; a failed probe is logged, not fatal. Outcomes that arrive in any
// other state are ignored.
func (c *Checker) ProbeDone(o domain.FetchOutcome) Action {
	if c.state != domain.ConnProbeInFlight {
		return ActionNone
	}
	if o.OK {
		c.append(MsgProbeOK)
	} else {
		c.append(MsgProbeFailed)
		c.append(errorPrefix + o.Diagnostic)
	}
	c.state = domain.ConnCredentialCheckInFlight
	c.append(MsgCredentialStarted)
	return ActionCredentialCheck
}

// CredentialDone settles the check. The bool is false when the outcome was
// ignored because no credential check was in flight.
func (c *Checker) CredentialDone(o domain.FetchOutcome) (domain.ConnectivityResult, bool) {
	if c.state != domain.ConnCredentialCheckInFlight {
		return c.Result(), false
	}
	if o.OK {
		c.state = domain.ConnPassed
		c.message = MsgCredentialOK
		c.append(MsgCredentialOK)
		c.append(MsgChecksCompleted)
	} else {
		c.state = domain.ConnFailed
		c.message = o.Diagnostic
		c.append(MsgCredentialFailed)
		c.append(errorPrefix + o.Diagnostic)
	}
	return c.Result(), true
}

func (c *Checker) State() domain.ConnState { return c.state }

// Result returns a snapshot; the log slice is copied.
func (c *Checker) Result() domain.ConnectivityResult {
	log := make([]string, len(c.log))
	copy(log, c.log)
	return domain.ConnectivityResult{
		State:   c.state,
		Passed:  c.state == domain.ConnPassed,
		Message: c.message,
		Log:     log,
	}
}

func (c *Checker) append(line string) {
	c.log = append(c.log, line)
}
