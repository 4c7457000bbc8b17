package luaforge

import (
	"encoding/hex"
	"regexp"
	"strings"

	"lukechampine.com/blake3"
)

// Identity records what was requested and how it was configured. The first
// eleven fields form the key; the rest are informational and shown by --show
// or read by LuaRocks.
type Identity struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Version  string `json:"version,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Location string `json:"location,omitempty"`
	Target   string `json:"target,omitempty"`
	Compat   string `json:"compat,omitempty"`
	CFlags   string `json:"c flags,omitempty"`
	Patched  string `json:"patched,omitempty"`
	Readline string `json:"readline,omitempty"`

	MajorVersion string `json:"major version,omitempty"`
	VSYear       string `json:"vs year,omitempty"`
	VSArch       string `json:"vs arch,omitempty"`
}

const maxKeyLen = 200

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]`)

// escapeField makes s safe for use inside a single path component.
func escapeField(s string) string {
	return nonWord.ReplaceAllString(s, "_")
}

func (id Identity) keyFields() []string {
	return []string{
		id.Name, id.Source, id.Version, id.Repo, id.Commit, id.Location,
		id.Target, id.Compat, id.CFlags, id.Patched, id.Readline,
	}
}

// Key joins the escaped key fields with "-". Keys longer than a file name
// may be are cut and suffixed with a BLAKE3 digest of the full key.
func (id Identity) Key() string {
	fields := id.keyFields()
	for i, f := range fields {
		fields[i] = escapeField(f)
	}
	key := strings.Join(fields, "-")
	if len(key) <= maxKeyLen {
		return key
	}
	sum := blake3.Sum256([]byte(key))
	return key[:150] + "-" + hex.EncodeToString(sum[:16])
}

// Equal compares the key fields only.
func (id Identity) Equal(other Identity) bool {
	return id.Key() == other.Key()
}

// options lists the non-empty informational key fields in display order.
func (id Identity) options() [][2]string {
	var out [][2]string
	for _, f := range [][2]string{
		{"Target", id.Target},
		{"Compat", id.Compat},
		{"C flags", id.CFlags},
		{"Patched", id.Patched},
		{"Readline", id.Readline},
	} {
		if f[1] != "" {
			out = append(out, f)
		}
	}
	return out
}

// ComputeIdentity derives the identity of a resolved request. It is a pure
// function of its inputs: field order is fixed by the struct, not by the
// order in which values were discovered.
func ComputeIdentity(v *Variant, opts Options, spec Spec, commit string, d derived) Identity {
	id := Identity{Name: v.Title, Source: string(spec.Kind)}

	switch spec.Kind {
	case KindRelease:
		id.Version = spec.Version
	case KindGit:
		id.Repo = spec.Repo
		id.Commit = commit
	}

	if v.Interpreter {
		id.Location = opts.Location
		id.Target = opts.Target
		id.Compat = d.Compat
		id.CFlags = opts.CFlags
		id.MajorVersion = d.Major
		id.VSYear = d.VSYear
		id.VSArch = d.VSArch
	}

	if v.Identify != nil {
		v.Identify(opts, &id)
	}
	return id
}
