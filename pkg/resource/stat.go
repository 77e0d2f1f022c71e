package resource

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// Stat probes path on the local filesystem and returns its current state as
// an observed-value map suitable for Resource.Diff, populated the way
// spec.md §3 describes: "computed state fields populated by stat" — mode,
// owner and group for a KindFile/KindDir path, or a symlink's target for
// KindSymlink. Only filesystem kinds can be probed this way; other kinds
// (user, group, service, package, sysctl, exec, host) require the
// kind-specific system calls original_source/managers/*.c makes (dpkg/rpm
// queries, init script status, …), which this package doesn't attempt —
// that probing belongs to a client-side enforcement agent, not the
// manifest/resource model.
func Stat(kind Kind, path string) (map[string]Value, error) {
	switch kind {
	case KindFile, KindDir:
		return statFileOrDir(path)
	case KindSymlink:
		return statSymlink(path)
	default:
		return nil, fmt.Errorf("resource kind %q has no local stat probe", kind)
	}
}

func statFileOrDir(path string) (map[string]Value, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return map[string]Value{"absent": {Type: TypeBool, Bool: true}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	observed := map[string]Value{
		"absent": {Type: TypeBool, Bool: false},
		"mode":   {Type: TypeOctal, Mode: uint32(info.Mode().Perm())},
	}

	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return observed, nil
	}
	if owner, err := user.LookupId(strconv.FormatUint(uint64(sys.Uid), 10)); err == nil {
		observed["owner"] = Value{Type: TypeString, Str: owner.Username}
	}
	if group, err := user.LookupGroupId(strconv.FormatUint(uint64(sys.Gid), 10)); err == nil {
		observed["group"] = Value{Type: TypeString, Str: group.Name}
	}
	return observed, nil
}

func statSymlink(path string) (map[string]Value, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return map[string]Value{"absent": {Type: TypeBool, Bool: true}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil, fmt.Errorf("%s exists and is not a symlink", path)
	}
	target, err := os.Readlink(path)
	if err != nil {
		return nil, fmt.Errorf("readlink %s: %w", path, err)
	}
	return map[string]Value{
		"absent": {Type: TypeBool, Bool: false},
		"target": {Type: TypeString, Str: target},
	}, nil
}
