package domain

import "time"

// RequestKind selects which logical request the fetch orchestrator issues.
type RequestKind int

const (
	BulkData RequestKind = iota
	ConnectivityProbe
	CredentialCheck
)

func (k RequestKind) String() string {
	switch k {
	case BulkData:
		return "bulk_data"
	case ConnectivityProbe:
		return "connectivity_probe"
	case CredentialCheck:
		return "credential_check"
	default:
		return "unknown"
	}
}

// OutcomeClass classifies a completed fetch.
type OutcomeClass int

const (
	Success OutcomeClass = iota
	// ApplicationFailure is a transport-level success whose body signals rejection,
	// e.g. a login page served with HTTP 200.
	ApplicationFailure
	TransportFailure
)

func (c OutcomeClass) String() string {
	switch c {
	case Success:
		return "success"
	case ApplicationFailure:
		return "application_failure"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// FetchOutcome is the result of exactly one request attempt.
type FetchOutcome struct {
	Kind       RequestKind   `json:"kind"`
	Class      OutcomeClass  `json:"class"`
	OK         bool          `json:"ok"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       string        `json:"-"`
	Diagnostic string        `json:"diagnostic"`
	Offline    bool          `json:"offline"`
	Duration   time.Duration `json:"duration"`
}

// ConnState is the state of the connectivity checker.
type ConnState int

const (
	// ConnNotStarted is the idle state before (or after a reset of) a check.
	ConnNotStarted ConnState = iota
	ConnProbeInFlight
	ConnCredentialCheckInFlight
	ConnPassed
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnNotStarted:
		return "not_started"
	case ConnProbeInFlight:
		return "probe_in_flight"
	case ConnCredentialCheckInFlight:
		return "credential_check_in_flight"
	case ConnPassed:
		return "passed"
	case ConnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is Passed or Failed.
func (s ConnState) Terminal() bool {
	return s == ConnPassed || s == ConnFailed
}

// ConnectivityResult is a snapshot of the checker: its state, the last
// diagnostic message and the accumulated connection log.
type ConnectivityResult struct {
	State   ConnState `json:"state"`
	Passed  bool      `json:"passed"`
	Message string    `json:"message,omitempty"`
	Log     []string  `json:"log,omitempty"`
}

// EventKind distinguishes notifications published to subscribers.
type EventKind int

const (
	EventBatchAvailable EventKind = iota
	EventConnectivityResult
)

func (k EventKind) String() string {
	switch k {
	case EventBatchAvailable:
		return "batch_available"
	case EventConnectivityResult:
		return "connectivity_result"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers in registration order.
type Event struct {
	Kind         EventKind
	At           time.Time
	BatchID      string
	Connectivity ConnectivityResult
}

func (k RequestKind) MarshalText() ([]byte, error)  { return []byte(k.String()), nil }
func (c OutcomeClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (s ConnState) MarshalText() ([]byte, error)    { return []byte(s.String()), nil }
