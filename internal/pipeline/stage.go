// Package pipeline sequences stage workers. A Run is a strict linear state
// machine: each stage's translated output becomes the next stage's input,
// and the first non-successful stage ends the run.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/heimdex/highlighter/internal/pathmap"
)

// Stage names.
const (
	StageExtractAudio = "extract-audio"
	StageTimestamps   = "timestamps"
	StageSplit        = "split"
	StagePrepareAudio = "prepare-audio"
	StageTranscribe   = "transcribe"
	StageSearch       = "search"
)

// Named chains.
const (
	ChainAudioSplit = "audio-split"
	ChainClipSearch = "clip-search"
)

// ParamWord is the keyword parameter consumed by the search stage.
const ParamWord = "word"

// ErrUnknownStage wraps every stage or chain lookup failure.
var ErrUnknownStage = errors.New("unknown stage")

// StageSpec describes one stage. Values are never mutated after the catalog
// is built.
type StageSpec struct {
	Name        string           `json:"name"`
	Endpoint    string           `json:"endpoint"`
	Description string           `json:"description"`
	Input       pathmap.Contract `json:"input"`
	Params      []string         `json:"params,omitempty"`
}

func (s StageSpec) String() string { return s.Name }

// params filters the run parameters down to the ones this stage declares.
func (s StageSpec) params(all map[string]string) map[string]string {
	if len(s.Params) == 0 || len(all) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Params))
	for _, k := range s.Params {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

var (
	videoInput   = pathmap.FileContract(".mp4", "")
	packageInput = pathmap.FileContract(pathmap.PackageExt, pathmap.DefaultResultName)
)

func defaultStages() []StageSpec {
	return []StageSpec{
		{Name: StageExtractAudio, Endpoint: "ffmpeg0", Description: "extract the audio track into a video+wav package", Input: videoInput},
		{Name: StageTimestamps, Endpoint: "librosa", Description: "derive cut timestamps from the audio track", Input: packageInput},
		{Name: StageSplit, Endpoint: "ffmpeg1", Description: "split the video into clips at the timestamps", Input: packageInput},
		{Name: StagePrepareAudio, Endpoint: "ffmpeg2", Description: "downsample audio to mono 16 kHz for transcription", Input: videoInput},
		{Name: StageTranscribe, Endpoint: "deepspeech", Description: "transcribe the prepared audio", Input: packageInput},
		{Name: StageSearch, Endpoint: "grep", Description: "search a transcript package for a keyword", Input: packageInput, Params: []string{ParamWord}},
	}
}

var defaultChains = map[string][]string{
	ChainAudioSplit: {StageExtractAudio, StageTimestamps, StageSplit},
	ChainClipSearch: {StagePrepareAudio, StageTranscribe, StageSearch},
}

// Catalog is the fixed set of stages and named chains the coordinator
// exposes.
type Catalog struct {
	stages map[string]StageSpec
	order  []string
}

// NewCatalog builds the stage catalog. endpoints optionally remaps a stage
// name to a different worker endpoint.
func NewCatalog(endpoints map[string]string) *Catalog {
	c := &Catalog{stages: make(map[string]StageSpec)}
	for _, s := range defaultStages() {
		if ep, ok := endpoints[s.Name]; ok && ep != "" {
			s.Endpoint = ep
		}
		c.stages[s.Name] = s
		c.order = append(c.order, s.Name)
	}
	return c
}

// Lookup returns the stage with the given name.
func (c *Catalog) Lookup(name string) (StageSpec, bool) {
	s, ok := c.stages[strings.TrimSpace(name)]
	return s, ok
}

// Stages returns all stages in catalog order.
func (c *Catalog) Stages() []StageSpec {
	out := make([]StageSpec, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.stages[n])
	}
	return out
}

// Endpoints returns every worker endpoint referenced by the catalog.
func (c *Catalog) Endpoints() []string {
	out := make([]string, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.stages[n].Endpoint)
	}
	return out
}

// ChainNames lists the named chains.
func ChainNames() []string {
	names := make([]string, 0, len(defaultChains))
	for n := range defaultChains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Chain resolves a named chain.
func (c *Catalog) Chain(name string) ([]StageSpec, error) {
	names, ok := defaultChains[name]
	if !ok {
		return nil, fmt.Errorf("%w: no chain named %q (known: %s)", ErrUnknownStage, name, strings.Join(ChainNames(), ", "))
	}
	return c.Resolve(names)
}

// Resolve maps stage names to specs. Any unknown name fails the whole list
// so that a run never starts with a partial chain.
func (c *Catalog) Resolve(names []string) ([]StageSpec, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty stage list", ErrUnknownStage)
	}
	out := make([]StageSpec, 0, len(names))
	for _, n := range names {
		s, ok := c.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownStage, n)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseChain accepts either a chain name or a comma-separated stage list.
func (c *Catalog) ParseChain(spec string) ([]StageSpec, error) {
	spec = strings.TrimSpace(spec)
	if _, ok := defaultChains[spec]; ok {
		return c.Chain(spec)
	}
	var names []string
	for _, part := range strings.Split(spec, ",") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return c.Resolve(names)
}

// Names returns the stage names of specs.
func Names(specs []StageSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
