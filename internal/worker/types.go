// Package worker invokes isolated stage workers (over the HTTP gateway or as
// subprocesses) and normalizes their replies into a typed Outcome.
package worker

import (
	"time"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/pathmap"
)

// Status is the normalized result class of one invocation.
type Status int

const (
	Success Status = iota
	Failed
	SystemError
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case SystemError:
		return "system_error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Request names the stage to run and the local artifact to hand it.
type Request struct {
	Stage    string
	Endpoint string
	Input    pathmap.PathRef
	Params   map[string]string
}

// Outcome is the result of one worker invocation. OutputLocation is a
// control-plane path and is set if and only if Status is Success; build
// values with Succeeded, Failure or SystemFailure to keep that true.
type Outcome struct {
	Stage          string        `json:"stage"`
	Status         Status        `json:"status"`
	OutputLocation string        `json:"output_location,omitempty"`
	Diagnostics    string        `json:"diagnostics,omitempty"`
	Fault          apperr.Kind   `json:"fault,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Succeeded reports a successful invocation. A success without a location
// is a broken reply and is downgraded to Failed.
func Succeeded(stage, location, diagnostics string) Outcome {
	if location == "" {
		return Failure(stage, "worker reported success without an output location")
	}
	return Outcome{Stage: stage, Status: Success, OutputLocation: location, Diagnostics: diagnostics}
}

// Failure reports a worker that ran and exited unsuccessfully.
func Failure(stage, diagnostics string) Outcome {
	return Outcome{Stage: stage, Status: Failed, Diagnostics: diagnostics, Fault: apperr.KindWorkerFailed}
}

// SystemFailure reports a failure to run the worker at all. kind is
// InputNotFound for precondition failures and WorkerUnreachable otherwise.
func SystemFailure(stage string, kind apperr.Kind, diagnostics string) Outcome {
	return Outcome{Stage: stage, Status: SystemError, Diagnostics: diagnostics, Fault: kind}
}

// IsSuccess returns true when the worker produced an output location.
func (o Outcome) IsSuccess() bool { return o.Status == Success }

// Valid checks the location/status invariant.
func (o Outcome) Valid() bool {
	return (o.OutputLocation != "") == (o.Status == Success)
}

// Ref returns the output location as a control-plane PathRef. Only
// meaningful when IsSuccess.
func (o Outcome) Ref() pathmap.PathRef {
	return pathmap.ControlRef(o.OutputLocation)
}

// Err returns the classified error for a non-successful outcome.
func (o Outcome) Err() error {
	if o.IsSuccess() {
		return nil
	}
	kind := o.Fault
	if kind == apperr.KindNone {
		kind = apperr.KindWorkerFailed
	}
	return &apperr.Error{Kind: kind, Stage: o.Stage, Diagnostics: o.Diagnostics}
}

// Response is the structured reply a worker (or the gateway in front of it)
// returns. Fields beyond output_location are informational.
type Response struct {
	Status         string `json:"status"`
	Tool           string `json:"tool,omitempty"`
	Message        string `json:"message,omitempty"`
	Logs           string `json:"logs,omitempty"`
	Error          string `json:"error,omitempty"`
	OutputLocation string `json:"output_location,omitempty"`
}

// diagnostics picks the most useful text from a reply.
func (r Response) diagnostics() string {
	for _, s := range []string{r.Logs, r.Error, r.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Availability reports whether stage workers can currently be reached.
type Availability struct {
	Transport string          `json:"transport"`
	Reachable bool            `json:"reachable"`
	Endpoints map[string]bool `json:"endpoints"`
	Detail    string          `json:"detail,omitempty"`
	ProbedAt  time.Time       `json:"probed_at"`
}
