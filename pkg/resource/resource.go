// Package resource implements the Resource Model of spec.md §2/§4.3: a sum
// type over resource kinds, each with a closed attribute schema, a stable
// packer, and an enforcement bitmask.
//
// Grounded on original_source/ast.h's res_* attribute tables (the closed
// per-kind attribute sets) and the teacher's pkg/types tagged-struct style.
package resource

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one of the ten resource kinds spec.md §2 enumerates.
type Kind string

const (
	KindUser    Kind = "user"
	KindGroup   Kind = "group"
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindHost    Kind = "host"
	KindService Kind = "service"
	KindPackage Kind = "package"
	KindSysctl  Kind = "sysctl"
	KindExec    Kind = "exec"
)

// AttrType is the coercion target for one attribute's raw string value.
type AttrType int

const (
	TypeString AttrType = iota
	TypeInt
	TypeOctal
	TypeBool
)

// AttrSchema describes one recognized attribute of a resource kind.
type AttrSchema struct {
	Name    string
	Type    AttrType
	Default string
}

// kindSchemas holds the ordered, closed attribute list for every kind. Order
// matters: it fixes each attribute's bit position in a Resource's
// enforcement bitmask.
var kindSchemas = map[Kind][]AttrSchema{
	KindUser: {
		{Name: "uid", Type: TypeInt},
		{Name: "gid", Type: TypeInt},
		{Name: "home", Type: TypeString},
		{Name: "shell", Type: TypeString, Default: "/bin/sh"},
		{Name: "comment", Type: TypeString},
		{Name: "locked", Type: TypeBool, Default: "no"},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindGroup: {
		{Name: "gid", Type: TypeInt},
		{Name: "members", Type: TypeString},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindFile: {
		{Name: "mode", Type: TypeOctal, Default: "0644"},
		{Name: "owner", Type: TypeString, Default: "root"},
		{Name: "group", Type: TypeString, Default: "root"},
		{Name: "source", Type: TypeString},
		{Name: "template", Type: TypeString},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindDir: {
		{Name: "mode", Type: TypeOctal, Default: "0755"},
		{Name: "owner", Type: TypeString, Default: "root"},
		{Name: "group", Type: TypeString, Default: "root"},
		{Name: "recurse", Type: TypeBool, Default: "no"},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindSymlink: {
		{Name: "target", Type: TypeString},
		{Name: "owner", Type: TypeString, Default: "root"},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindHost: {
		{Name: "ip", Type: TypeString},
		{Name: "aliases", Type: TypeString},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindService: {
		{Name: "running", Type: TypeBool, Default: "yes"},
		{Name: "enabled", Type: TypeBool, Default: "yes"},
		{Name: "user", Type: TypeString},
	},
	KindPackage: {
		{Name: "version", Type: TypeString, Default: "latest"},
		{Name: "absent", Type: TypeBool, Default: "no"},
	},
	KindSysctl: {
		{Name: "value", Type: TypeString},
	},
	KindExec: {
		{Name: "command", Type: TypeString},
		{Name: "onlyif", Type: TypeString},
		{Name: "unless", Type: TypeString},
	},
}

// Schema returns the attribute schema list for kind, or nil if kind is not
// recognized.
func Schema(kind Kind) []AttrSchema { return kindSchemas[kind] }

// attrIndex finds the bit position of attr within kind's schema.
func attrIndex(kind Kind, attr string) (int, bool) {
	for i, s := range kindSchemas[kind] {
		if s.Name == attr {
			return i, true
		}
	}
	return 0, false
}

// Value is a coerced attribute value: exactly one of the fields is
// meaningful, selected by Type.
type Value struct {
	Type AttrType
	Str  string
	Int  int64
	Bool bool
	Mode uint32
}

func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeOctal:
		return fmt.Sprintf("0%o", v.Mode)
	case TypeBool:
		if v.Bool {
			return "yes"
		}
		return "no"
	default:
		return v.Str
	}
}

// CoerceValue converts raw per attr's schema type. An error here is the
// evaluator's ATTR "unknown attribute" / bad-value hard error (spec.md §4.2).
func CoerceValue(kind Kind, attr, raw string) (Value, error) {
	idx, ok := attrIndex(kind, attr)
	if !ok {
		return Value{}, fmt.Errorf("resource kind %q has no attribute %q", kind, attr)
	}
	schema := kindSchemas[kind][idx]
	switch schema.Type {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("attribute %q: %v", attr, err)
		}
		return Value{Type: TypeInt, Int: n}, nil
	case TypeOctal:
		n, err := strconv.ParseUint(strings.TrimPrefix(raw, "0"), 8, 32)
		if err != nil {
			return Value{}, fmt.Errorf("attribute %q: invalid octal mode %q: %v", attr, raw, err)
		}
		return Value{Type: TypeOctal, Mode: uint32(n)}, nil
	case TypeBool:
		switch strings.ToLower(raw) {
		case "yes", "true", "1":
			return Value{Type: TypeBool, Bool: true}, nil
		case "no", "false", "0":
			return Value{Type: TypeBool, Bool: false}, nil
		default:
			return Value{}, fmt.Errorf("attribute %q: invalid boolean %q", attr, raw)
		}
	default:
		return Value{Type: TypeString, Str: raw}, nil
	}
}

// Resource is one fully-specialized, kind-tagged resource produced by the
// Evaluator. Key is kind-prefixed as spec.md §2 requires, e.g. "file:/etc/x".
type Resource struct {
	Kind   Kind
	Name   string
	Key    string
	Values map[string]Value
	bits   uint64 // enforcement bitmask: bit i set iff Schema(Kind)[i] is enforced
}

// New creates an empty resource of kind with the given name.
func New(kind Kind, name string) *Resource {
	return &Resource{
		Kind:   kind,
		Name:   name,
		Key:    string(kind) + ":" + name,
		Values: make(map[string]Value),
	}
}

// SetAttr coerces raw and records attr as enforced. Returns an error for an
// attribute name unknown to the resource's kind (spec.md §4.2: "An unknown
// attribute name is a hard error").
func (r *Resource) SetAttr(attr, raw string) error {
	idx, ok := attrIndex(r.Kind, attr)
	if !ok {
		return fmt.Errorf("unknown attribute %q for resource kind %q", attr, r.Kind)
	}
	v, err := CoerceValue(r.Kind, attr, raw)
	if err != nil {
		return err
	}
	r.Values[attr] = v
	r.bits |= 1 << uint(idx)
	return nil
}

// Enforced reports whether attr has been explicitly set on this resource.
func (r *Resource) Enforced(attr string) bool {
	idx, ok := attrIndex(r.Kind, attr)
	if !ok {
		return false
	}
	return r.bits&(1<<uint(idx)) != 0
}

// EnforcedAttrs returns the names of every enforced attribute, in schema
// order (stable across calls).
func (r *Resource) EnforcedAttrs() []string {
	var out []string
	for i, s := range kindSchemas[r.Kind] {
		if r.bits&(1<<uint(i)) != 0 {
			out = append(out, s.Name)
		}
	}
	return out
}

// Pack emits a stable string representation of the enforced attribute
// subset: "kind:name attr1=v1 attr2=v2 ..." with attributes in schema
// (not insertion) order, so identical enforced sets always pack identically
// regardless of manifest authoring order.
func (r *Resource) Pack() string {
	attrs := r.EnforcedAttrs()
	parts := make([]string, 0, len(attrs)+1)
	parts = append(parts, r.Key)
	for _, a := range attrs {
		parts = append(parts, a+"="+r.Values[a].String())
	}
	return strings.Join(parts, " ")
}

// ValidKind reports whether kind names one of the recognized resource
// kinds.
func ValidKind(kind string) bool {
	_, ok := kindSchemas[Kind(kind)]
	return ok
}

// AttrDiff is one attribute-level delta between a Resource's enforced
// (desired) value and an observed value, per spec.md §3's computed-state
// fields and §2's "packing, diffing" responsibility.
type AttrDiff struct {
	Attr    string
	Want    Value
	Got     Value
	Present bool // false if observed had no value for Attr at all
}

func (d AttrDiff) String() string {
	if !d.Present {
		return fmt.Sprintf("%s: want %s, not present", d.Attr, d.Want)
	}
	return fmt.Sprintf("%s: want %s, got %s", d.Attr, d.Want, d.Got)
}

// Diff compares r's enforced attributes against observed — current state as
// produced by Stat or any other probe — and returns one AttrDiff per
// enforced attribute whose observed value doesn't match, in schema order.
// Unenforced attributes are never compared, matching original_source's
// managers/*.c pattern of only ever checking the subset of state a resource
// actually declares (package_manager_*_query comparing installed version
// only when one was specified; service status checked only against the
// declared running/enabled flags). A nil diff slice means the resource is
// already in its desired state.
func (r *Resource) Diff(observed map[string]Value) []AttrDiff {
	var diffs []AttrDiff
	for _, attr := range r.EnforcedAttrs() {
		want := r.Values[attr]
		got, present := observed[attr]
		if !present {
			diffs = append(diffs, AttrDiff{Attr: attr, Want: want, Present: false})
			continue
		}
		if got.String() != want.String() {
			diffs = append(diffs, AttrDiff{Attr: attr, Want: want, Got: got, Present: true})
		}
	}
	return diffs
}

// InSync reports whether observed already satisfies every enforced
// attribute on r.
func (r *Resource) InSync(observed map[string]Value) bool {
	return len(r.Diff(observed)) == 0
}
