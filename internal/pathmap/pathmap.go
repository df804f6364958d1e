// Package pathmap translates paths between the worker (control-plane)
// namespace and the coordinator's local namespace, and resolves whether a
// stage output should be handed to the next stage as a folder or a file.
//
// Translation is a literal prefix substitution, never a semantic path
// resolution: "/data/outputs/x" with roots "/data/" -> "./media_data/"
// becomes "./media_data/outputs/x".
package pathmap

import (
	"os"
	"path"
	"strings"
)

const (
	DefaultControlRoot = "/data/"
	DefaultLocalRoot   = "./media_data/"

	PackageExt        = ".tar.gz"
	DefaultResultName = "result.tar.gz"
)

// Namespace identifies which view of the shared storage a path belongs to.
type Namespace int

const (
	ControlPlane Namespace = iota
	Local
)

func (n Namespace) String() string {
	switch n {
	case ControlPlane:
		return "control-plane"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// Kind is the inferred type of a filesystem location.
type Kind int

const (
	Unknown Kind = iota
	File
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// PathRef is a path tagged with its namespace. Kind is a hint only.
type PathRef struct {
	Namespace Namespace `json:"namespace"`
	Raw       string    `json:"raw"`
	Kind      Kind      `json:"kind"`
}

func (r PathRef) String() string { return r.Raw }

// IsLocal reports whether the ref may be opened by this process.
func (r PathRef) IsLocal() bool { return r.Namespace == Local }

// Translator maps between the two namespace roots.
type Translator struct {
	ControlRoot string
	LocalRoot   string
}

// NewTranslator returns a Translator, falling back to the default roots for
// empty arguments.
func NewTranslator(controlRoot, localRoot string) *Translator {
	if controlRoot == "" {
		controlRoot = DefaultControlRoot
	}
	if localRoot == "" {
		localRoot = DefaultLocalRoot
	}
	return &Translator{ControlRoot: controlRoot, LocalRoot: localRoot}
}

// Translate rewrites a control-plane path into the local namespace. Paths
// that are already local, or that do not carry the control-plane prefix,
// come back unchanged.
func (t *Translator) Translate(p string) string {
	if t.LocalRoot != "" && strings.HasPrefix(p, t.LocalRoot) {
		return p
	}
	if t.ControlRoot == "" || !strings.HasPrefix(p, t.ControlRoot) {
		return p
	}
	return t.LocalRoot + p[len(t.ControlRoot):]
}

// ToControl is the inverse of Translate, used when a local artifact must be
// named the way a worker sees it.
func (t *Translator) ToControl(p string) string {
	if t.LocalRoot == "" || !strings.HasPrefix(p, t.LocalRoot) {
		return p
	}
	return t.ControlRoot + p[len(t.LocalRoot):]
}

// Ref translates p and returns it as a local PathRef with an inferred kind.
func (t *Translator) Ref(p string) PathRef {
	local := t.Translate(p)
	return PathRef{Namespace: Local, Raw: local, Kind: InferKind(local)}
}

// ControlRef tags p as a control-plane path without translating it.
func ControlRef(p string) PathRef {
	return PathRef{Namespace: ControlPlane, Raw: p, Kind: Unknown}
}

// LocalRef tags p as a local path with an inferred kind.
func LocalRef(p string) PathRef {
	return PathRef{Namespace: Local, Raw: p, Kind: InferKind(p)}
}

// InferKind stats p when it exists, otherwise guesses from the extension.
// Worker output folders and files are both plausible for the same string,
// so callers must not use this to pick between them.
func InferKind(p string) Kind {
	if info, err := os.Stat(p); err == nil {
		if info.IsDir() {
			return Directory
		}
		return File
	}
	if path.Ext(strings.TrimSuffix(p, "/")) != "" {
		return File
	}
	return Unknown
}

// HasExt reports whether p ends in ext, case-insensitively. Compound
// extensions such as ".tar.gz" are supported.
func HasExt(p, ext string) bool {
	if ext == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(p), strings.ToLower(ext))
}
