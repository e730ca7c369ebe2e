package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ghalamif/SensorLens/internal/domain"
	"github.com/ghalamif/SensorLens/internal/ports"
)

const (
	DefaultProbeURL       = "http://www.google.com"
	DefaultAcceptLanguage = "en-US,en;q=0.8"
	// DefaultLoginMarker appears in the HTML login page the service returns
	// with HTTP 200 when credentials are rejected.
	DefaultLoginMarker    = "<title>HANA Login</title>"
	LoginFailedDiagnostic = "HCP Login Failed - User or Pwd wrong"

	OfflineProbeText      = "some google text"
	OfflineCredentialText = "some login cred text"

	probeTruncateLen = 20
	truncatedSuffix  = " (string truncated)"
)

// ErrNoServiceURL is reported when an authenticated request has no target.
var ErrNoServiceURL = errors.New("fetch: service url is not set")

// Target describes the remote service a session talks to.
type Target struct {
	ServiceURL string
	Username   string
	Password   string
	// RowLimit is the $top value for BulkData requests.
	RowLimit int
}

// OfflineBulkSource supplies the BulkData payload in offline mode. When nil
// (the default) an offline BulkData request is a no-op.
type OfflineBulkSource func() (string, error)

type Options struct {
	ProbeURL       string
	AcceptLanguage string
	LoginMarker    string
	OfflineBulk    OfflineBulkSource
}

func (o *Options) applyDefaults() {
	if o.ProbeURL == "" {
		o.ProbeURL = DefaultProbeURL
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = DefaultAcceptLanguage
	}
	if o.LoginMarker == "" {
		o.LoginMarker = DefaultLoginMarker
	}
}

// Orchestrator issues exactly one request per call. It does not serialize
// concurrent calls for the same kind; callers that need one outstanding
// BulkData request at a time must enforce that themselves.
//
// There is no timeout: a hung request never completes unless ctx is done.
type Orchestrator struct {
	transport ports.Transport
	obs       ports.Observability
	opts      Options
	now       func() time.Time
}

func New(transport ports.Transport, obs ports.Observability, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{transport: transport, obs: obs, opts: opts, now: time.Now}
}

// Request is a fully built outbound GET.
type Request struct {
	URL    string
	Header http.Header
}

// BuildRequest returns the URL and headers for kind. The probe is a bare GET
// with no headers and no query parameters.
func (o *Orchestrator) BuildRequest(kind domain.RequestKind, t Target) (Request, error) {
	h := http.Header{}

	switch kind {
	case domain.ConnectivityProbe:
		return Request{URL: o.opts.ProbeURL, Header: h}, nil
	case domain.BulkData, domain.CredentialCheck:
		h.Set("Accept-Language", o.opts.AcceptLanguage)
		if t.ServiceURL == "" {
			return Request{}, ErrNoServiceURL
		}
		top := 1
		if kind == domain.BulkData {
			top = t.RowLimit
		}
		h.Set("Authorization", BasicAuth(t.Username, t.Password))
		return Request{URL: withQuery(t.ServiceURL, top), Header: h}, nil
	default:
		return Request{}, fmt.Errorf("fetch: unknown request kind %d", kind)
	}
}

// BasicAuth encodes username:password as a Basic Authorization value.
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// withQuery appends the OData parameters verbatim; "$" is not escaped.
func withQuery(base string, top int) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "$top=" + strconv.Itoa(top) + "&$format=json"
}

// Do performs one online attempt and classifies it.
func (o *Orchestrator) Do(ctx context.Context, kind domain.RequestKind, t Target) domain.FetchOutcome {
	start := o.now()
	req, err := o.BuildRequest(kind, t)
	if err != nil {
		out := domain.FetchOutcome{Kind: kind, Class: domain.TransportFailure, Diagnostic: err.Error()}
		o.record(out)
		return out
	}

	resp, err := o.transport.Get(ctx, req.URL, req.Header)
	out := o.Classify(kind, resp, err)
	out.Duration = o.now().Sub(start)
	o.record(out)
	return out
}

// Classify maps a completed exchange to an outcome. A transport error is a
// TransportFailure. A body carrying the login marker is an ApplicationFailure
// whatever the status. Any other non-2xx status is a TransportFailure.
func (o *Orchestrator) Classify(kind domain.RequestKind, resp *ports.Response, err error) domain.FetchOutcome {
	out := domain.FetchOutcome{Kind: kind}
	if err != nil {
		out.Class = domain.TransportFailure
		out.Diagnostic = err.Error()
		return out
	}
	if resp == nil {
		out.Class = domain.TransportFailure
		out.Diagnostic = "no response"
		return out
	}

	out.StatusCode = resp.StatusCode
	body := string(resp.Body)

	switch {
	case strings.Contains(body, o.opts.LoginMarker):
		out.Class = domain.ApplicationFailure
		out.Diagnostic = LoginFailedDiagnostic
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		out.Class = domain.TransportFailure
		out.Diagnostic = statusText(resp)
		out.Body = body
	default:
		out.Class = domain.Success
		out.OK = true
		out.Body = body
		out.Diagnostic = body
		if kind == domain.ConnectivityProbe {
			out.Diagnostic = truncate(body)
		}
	}
	return out
}

// Offline answers kind without network I/O. It reports false when there is
// nothing to deliver, which is the case for BulkData without an offline source.
func (o *Orchestrator) Offline(kind domain.RequestKind) (domain.FetchOutcome, bool) {
	out := domain.FetchOutcome{Kind: kind, Class: domain.Success, OK: true, Offline: true}
	switch kind {
	case domain.ConnectivityProbe:
		out.Body, out.Diagnostic = OfflineProbeText, OfflineProbeText
	case domain.CredentialCheck:
		out.Body, out.Diagnostic = OfflineCredentialText, OfflineCredentialText
	case domain.BulkData:
		if o.opts.OfflineBulk == nil {
			return domain.FetchOutcome{}, false
		}
		text, err := o.opts.OfflineBulk()
		if err != nil {
			o.obs.LogWarn("offline_bulk_unavailable", ports.Field{Key: "error", Value: err.Error()})
			return domain.FetchOutcome{}, false
		}
		out.Body, out.Diagnostic = text, "offline payload"
	default:
		return domain.FetchOutcome{}, false
	}
	o.record(out)
	return out, true
}

// Fetch is the asynchronous form used by the coordinator. Offline answers are
// delivered synchronously before Fetch returns; online attempts run on their
// own goroutine and call done exactly once.
func (o *Orchestrator) Fetch(ctx context.Context, kind domain.RequestKind, t Target, offline bool, done func(domain.FetchOutcome)) {
	if offline {
		if out, ok := o.Offline(kind); ok {
			done(out)
		}
		return
	}
	go func() {
		done(o.Do(ctx, kind, t))
	}()
}

func (o *Orchestrator) record(out domain.FetchOutcome) {
	o.obs.RecordFetch(out)
	fields := []ports.Field{
		{Key: "kind", Value: out.Kind.String()},
		{Key: "class", Value: out.Class.String()},
		{Key: "status", Value: out.StatusCode},
		{Key: "offline", Value: out.Offline},
	}
	if out.OK {
		o.obs.LogInfo("fetch_completed", append(fields, ports.Field{Key: "body", Value: truncate(out.Body)})...)
		return
	}
	o.obs.LogWarn("fetch_failed", append(fields, ports.Field{Key: "diagnostic", Value: out.Diagnostic})...)
}

func statusText(resp *ports.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// truncate keeps at most probeTruncateLen bytes, backing off to a rune boundary.
func truncate(s string) string {
	if len(s) <= probeTruncateLen {
		return s
	}
	cut := probeTruncateLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}
