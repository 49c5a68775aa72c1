package supervisor

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// sysProcAttrFor builds the SysProcAttr applying the uid/gid pre-exec
// drop: gid then uid are applied before exec, only when the current
// process is root and the target differs from 0 — otherwise User=/Group=
// are informational only, matching unitd/sudo.py's root-gated behavior.
// setpgrp puts the child in its own process group; both the main process
// of a Simple unit and CommandRunner's auxiliary commands request it, so
// that control-group kill mode and CommandRunner's cancellation can signal
// the whole group.
func sysProcAttrFor(uid, gid int, setpgrp bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: setpgrp}
	if isRoot() {
		if gid >= 0 && gid != 0 {
			attr.Credential = &syscall.Credential{Gid: uint32(gid)}
		}
		if uid >= 0 && uid != 0 {
			if attr.Credential == nil {
				attr.Credential = &syscall.Credential{}
			}
			attr.Credential.Uid = uint32(uid)
		}
	}
	return attr
}

func isRoot() bool {
	return syscall.Getuid() == 0
}

// childEnvironment overrides LOGNAME/USER/USERNAME/HOME for the child when a
// uid change is in effect, derived from the passwd database for the target
// uid. base is the environment to start from (typically os.Environ());
// the parent's own environment is never mutated.
func childEnvironment(base []string, uid int) ([]string, error) {
	if uid < 0 || !isRoot() {
		return base, nil
	}

	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return nil, fmt.Errorf("lookup uid %d for child environment: %w", uid, err)
	}

	out := make([]string, 0, len(base)+4)
	for _, kv := range base {
		switch {
		case hasPrefixKey(kv, "LOGNAME="), hasPrefixKey(kv, "USER="),
			hasPrefixKey(kv, "USERNAME="), hasPrefixKey(kv, "HOME="):
			continue
		default:
			out = append(out, kv)
		}
	}
	out = append(out,
		"LOGNAME="+u.Username,
		"USER="+u.Username,
		"USERNAME="+u.Username,
		"HOME="+u.HomeDir,
	)
	return out, nil
}

func hasPrefixKey(kv, prefix string) bool {
	return len(kv) >= len(prefix) && kv[:len(prefix)] == prefix
}
