package unitconfig

import (
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseBool accepts {yes,true,1} / {no,false,0}, case-insensitive.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value: %q", s)
	}
}

// ParseInt parses a plain base-10 integer.
func ParseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value: %q", s)
	}
	return n, nil
}

var reSignalName = regexp.MustCompile(`^SIG[A-Z0-9]+$`)

// ParseSignal resolves a symbolic signal name (any SIG[A-Z0-9]+ known to the
// platform's signal table, via golang.org/x/sys/unix.SignalNum) or a bare
// integer signal number. This replaces the original's buggy
// `re.match("^[A-Z]+^", s)`, which could never match: its trailing `^`
// requires the start of the string after at least one letter.
func ParseSignal(s string) (int, error) {
	s = strings.TrimSpace(s)
	if reSignalName.MatchString(s) {
		num := unix.SignalNum(s)
		if num == 0 {
			return 0, fmt.Errorf("invalid signal name: %q", s)
		}
		return int(num), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid signal number: %q", s)
	}
	return n, nil
}

var reDelayToken = regexp.MustCompile(`^(?:(\d+)min|(\d+)sec)$`)

// ParseDelay parses "infinity", a bare integer second count, or a
// space-separated list of "Nmin"/"Nsec" tokens summed, per unitd/config.py's
// parse_delay. A nil return means "infinity" (no deadline).
func ParseDelay(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "infinity" {
		return nil, nil
	}
	if isAllDigits(s) {
		n, err := ParseInt(s)
		if err != nil {
			return nil, err
		}
		return &n, nil
	}

	total := 0
	for _, tok := range strings.Fields(s) {
		mo := reDelayToken.FindStringSubmatch(tok)
		if mo == nil {
			return nil, fmt.Errorf("invalid time unit: %q", s)
		}
		if mo[1] != "" {
			n, _ := strconv.Atoi(mo[1])
			total += n * 60
		} else {
			n, _ := strconv.Atoi(mo[2])
			total += n
		}
	}
	return &total, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseUser resolves User=/Group= values: a literal number, a "$VAR"
// reference expanded from the environment, or an NSS name looked up via the
// platform's passwd/group database. Returns -1, false if val is empty
// (unset).
func ParseUser(val string) (uid int, ok bool, err error) {
	return parseIdentity(val, false)
}

// ParseGroup mirrors ParseUser for the group database.
func ParseGroup(val string) (gid int, ok bool, err error) {
	return parseIdentity(val, true)
}

// lookupHomeByUID resolves a numeric uid to its $HOME via the NSS passwd
// database, used by ServiceConfig.ResolveWorkingDirectory.
func lookupHomeByUID(uid int) (string, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return "", fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	if u.HomeDir == "" {
		return "", fmt.Errorf("uid %d has no home directory", uid)
	}
	return u.HomeDir, nil
}

func parseIdentity(val string, isGroup bool) (int, bool, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return -1, false, nil
	}
	if strings.HasPrefix(val, "$") {
		expanded := os.Getenv(strings.TrimPrefix(val, "$"))
		if expanded == "" {
			return -1, false, fmt.Errorf("environment variable %q is unset", val)
		}
		val = expanded
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n, true, nil
	}
	if isGroup {
		g, err := user.LookupGroup(val)
		if err != nil {
			return -1, false, fmt.Errorf("lookup group %q: %w", val, err)
		}
		n, err := strconv.Atoi(g.Gid)
		if err != nil {
			return -1, false, fmt.Errorf("group %q has non-numeric gid %q", val, g.Gid)
		}
		return n, true, nil
	}
	u, err := user.Lookup(val)
	if err != nil {
		return -1, false, fmt.Errorf("lookup user %q: %w", val, err)
	}
	n, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, false, fmt.Errorf("user %q has non-numeric uid %q", val, u.Uid)
	}
	return n, true, nil
}
