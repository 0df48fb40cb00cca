package syscalls

import (
	"os/user"
	"strconv"

	"github.com/pkg/errors"
)

// FindUser resolves a username to a uid, wrapping os/user.Lookup (itself a
// getpwnam(3) front-end). No third-party alternative in the example pack
// improves on the standard library here — see DESIGN.md.
func FindUser(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, errors.Wrapf(err, "find user %q", name)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, errors.Wrapf(err, "parse uid for %q", name)
	}
	return uid, nil
}

// FindGroup resolves a group name to a gid.
func FindGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, errors.Wrapf(err, "find group %q", name)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, errors.Wrapf(err, "parse gid for %q", name)
	}
	return gid, nil
}
