package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/rs/zerolog"

	"voiced/internal/common/procutil"
)

// PrivilegeDroppedEnv marks the re-executed, unprivileged image.
const PrivilegeDroppedEnv = "VOICED_PRIVILEGE_DROPPED"

// DefaultServiceUser is the account created by the container image.
const DefaultServiceUser = "appuser"

// Identity is the resolved service account.
type Identity struct {
	Name   string
	UID    int
	GID    int
	Groups []int
}

// PrivilegeDropper switches a root process to the service identity by
// changing credentials and re-executing the same binary. The exec replaces
// the privileged image, so a successful Drop does not return. Every system
// call is a field so tests can run without root.
type PrivilegeDropper struct {
	User   string
	Logger zerolog.Logger

	Geteuid    func() int
	Lookup     func(name string) (Identity, error)
	Switch     func(Identity) error
	Exec       func(path string, argv, env []string) error
	Executable func() (string, error)
	Args       []string
	Env        []string
}

// NewPrivilegeDropper wires the dropper to the running process.
func NewPrivilegeDropper(name string, log zerolog.Logger) PrivilegeDropper {
	if name == "" {
		name = DefaultServiceUser
	}
	return PrivilegeDropper{
		User:       name,
		Logger:     log,
		Geteuid:    os.Geteuid,
		Lookup:     LookupIdentity,
		Switch:     switchIdentity,
		Exec:       execSelf,
		Executable: selfExecutable,
		Args:       os.Args,
		Env:        os.Environ(),
	}
}

// Drop is a no-op for a non-root process. Errors are fatal StageErrors.
func (p PrivilegeDropper) Drop() error {
	if p.Geteuid() != 0 {
		p.Logger.Debug().Int("euid", p.Geteuid()).Msg("running unprivileged")
		return nil
	}
	if v, ok := procutil.LookupEnv(p.Env, PrivilegeDroppedEnv); ok && v != "" {
		return ErrStage(StageDropPrivilege, errors.New("still running as root after privilege drop"))
	}
	id, err := p.Lookup(p.User)
	if err != nil {
		return ErrStage(StageDropPrivilege, fmt.Errorf("lookup user %q: %w", p.User, err))
	}
	if id.UID == 0 {
		return ErrStage(StageDropPrivilege, fmt.Errorf("service user %q has uid 0", p.User))
	}
	exe, err := p.Executable()
	if err != nil {
		return ErrStage(StageDropPrivilege, fmt.Errorf("resolve executable: %w", err))
	}
	if err := p.Switch(id); err != nil {
		return ErrStage(StageDropPrivilege, fmt.Errorf("switch to %s (%d:%d): %w", id.Name, id.UID, id.GID, err))
	}
	p.Logger.Info().Str("user", id.Name).Int("uid", id.UID).Int("gid", id.GID).Msg("dropped privileges; re-executing")
	env := append(append([]string(nil), p.Env...), PrivilegeDroppedEnv+"=1")
	if err := p.Exec(exe, p.Args, env); err != nil {
		return ErrStage(StageDropPrivilege, fmt.Errorf("re-exec %s: %w", exe, err))
	}
	return nil
}

// LookupIdentity resolves a user name through the system account database.
func LookupIdentity(name string) (Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Identity{}, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("gid %q: %w", u.Gid, err)
	}
	id := Identity{Name: u.Username, UID: uid, GID: gid, Groups: []int{gid}}
	if ids, err := u.GroupIds(); err == nil {
		id.Groups = id.Groups[:0]
		for _, g := range ids {
			if n, err := strconv.Atoi(g); err == nil {
				id.Groups = append(id.Groups, n)
			}
		}
	}
	return id, nil
}
