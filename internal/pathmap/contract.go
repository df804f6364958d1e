package pathmap

import (
	"fmt"
	"strings"
)

// Contract is the input a stage declares it accepts. Resolve uses it to
// decide whether a translated output location is passed on as-is, as its
// parent folder, or with a result filename appended.
type Contract struct {
	Kind       Kind   `json:"kind"`
	Extension  string `json:"extension,omitempty"`
	ResultName string `json:"result_name,omitempty"`
}

// FileContract accepts a concrete file with the given extension. Folder
// outputs get resultName appended.
func FileContract(ext, resultName string) Contract {
	return Contract{Kind: File, Extension: ext, ResultName: resultName}
}

// DirContract accepts a folder.
func DirContract() Contract {
	return Contract{Kind: Directory, Extension: PackageExt, ResultName: DefaultResultName}
}

func (c Contract) String() string {
	switch c.Kind {
	case File:
		if c.Extension != "" {
			return "file " + c.Extension
		}
		return "file"
	case Directory:
		return "directory"
	default:
		return "any"
	}
}

// Accepts checks p against the contract's extension. Directory and
// extension-less contracts accept anything.
func (c Contract) Accepts(p string) error {
	if c.Kind != File || c.Extension == "" {
		return nil
	}
	if !HasExt(p, c.Extension) {
		return fmt.Errorf("input %q does not match contract %s", p, c)
	}
	return nil
}

// Resolve applies the folder-vs-file rule for a consumer with contract c.
//
//   - Directory: a path naming the package or result file is replaced by its
//     parent folder; anything else is returned unchanged.
//   - File with an extension: a path already carrying the extension is
//     returned unchanged; otherwise ResultName is appended under it.
//   - Otherwise p is returned unchanged.
func Resolve(p string, c Contract) string {
	switch c.Kind {
	case Directory:
		if HasExt(p, c.Extension) || (c.ResultName != "" && strings.HasSuffix(p, "/"+c.ResultName)) {
			return parent(p)
		}
		return p
	case File:
		if c.Extension == "" || HasExt(p, c.Extension) {
			return p
		}
		name := c.ResultName
		if name == "" {
			name = DefaultResultName
		}
		return join(p, name)
	default:
		return p
	}
}

// ResolveRef is Resolve over a PathRef; the namespace is preserved and the
// kind follows the contract.
func ResolveRef(ref PathRef, c Contract) PathRef {
	out := Resolve(ref.Raw, c)
	kind := ref.Kind
	if c.Kind != Unknown {
		kind = c.Kind
	}
	return PathRef{Namespace: ref.Namespace, Raw: out, Kind: kind}
}

func join(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func parent(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "."
	}
	if i == 0 {
		return "/"
	}
	return trimmed[:i]
}
