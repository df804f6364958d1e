package coordinator

import (
	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/pipeline"
)

// Mode names the entry point a Request selects.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeChain      Mode = "chain"
	ModeBatch      Mode = "batch"
	ModeHighlights Mode = "highlights"
)

// Request is one of Single, Chain, Batch or Highlights.
type Request interface {
	Mode() Mode
	isRequest()
}

// Single runs one stage on Input.
type Single struct {
	Stage  string            `json:"stage"`
	Input  string            `json:"input"`
	Params map[string]string `json:"params,omitempty"`
}

// Chain runs Stages in order on Input. A single element may name a chain
// or hold a comma-separated stage list.
type Chain struct {
	Stages []string          `json:"stages"`
	Input  string            `json:"input"`
	Params map[string]string `json:"params,omitempty"`
}

// Batch searches every clip under Folder for Keyword.
type Batch struct {
	Folder  string `json:"folder"`
	Keyword string `json:"keyword"`
}

// Highlights splits the video at Input into clips and batches over them.
type Highlights struct {
	Input   string `json:"input"`
	Keyword string `json:"keyword"`
}

func (Single) Mode() Mode     { return ModeSingle }
func (Chain) Mode() Mode      { return ModeChain }
func (Batch) Mode() Mode      { return ModeBatch }
func (Highlights) Mode() Mode { return ModeHighlights }

func (Single) isRequest()     {}
func (Chain) isRequest()      {}
func (Batch) isRequest()      {}
func (Highlights) isRequest() {}

// Result carries whichever of Run and Report the request produced. Err is
// the request-level failure, including a failed run.
type Result struct {
	Mode   Mode          `json:"mode"`
	Run    *pipeline.Run `json:"run,omitempty"`
	Report *batch.Report `json:"report,omitempty"`
	Err    error         `json:"-"`
}

// Error returns Err's message, or "".
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
