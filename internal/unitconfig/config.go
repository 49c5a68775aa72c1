package unitconfig

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
)

// KillMode selects how a supervisor ProcessUnit's Stop signals the main
// process.
type KillMode string

const (
	// KillModeControlGroup signals the negative pid (process group leader),
	// honored only as "signal the process group" — no cgroup involvement.
	KillModeControlGroup KillMode = "control-group"
	// KillModeProcess signals only the main pid.
	KillModeProcess KillMode = "process"
	// KillModeNone disables signaling on stop entirely.
	KillModeNone KillMode = "none"
)

// ServiceConfig is the immutable-after-parse [Service] section. Parse
// starts from the defaults set in newDefaultConfig (matching
// unitd/config.py's Service.__init__), not from the zero value.
type ServiceConfig struct {
	SyslogIdentifier string
	WorkingDirectory string // "" means unset; "~" means the target user's home

	ExecStart      []CommandSpec
	ExecStartPre   []CommandSpec
	ExecStartPost  []CommandSpec
	ExecStop       []CommandSpec
	ExecStopPost   []CommandSpec

	KillMode      KillMode
	KillSignal    int
	SendSIGKILL   bool
	TimeoutStopSec *int // nil == infinity

	User  int // -1 if unset
	Group int // -1 if unset
}

// UnitSection is the opaque [Unit] section: recognized keys are stored
// verbatim for round-trip serialization but the core attaches no semantics
// to them — there is no unit dependency graph.
type UnitSection struct {
	Description string
}

// WebrunSection is the [Webrun] section from unitd/config.py's Webrun
// class. The core never consumes it; internal/statusapi surfaces it as
// read-only metadata.
type WebrunSection struct {
	DisplayGeometry string
	WebPort         int
}

// Config is the fully parsed unit file: the three recognized sections.
type Config struct {
	Unit    UnitSection
	Service ServiceConfig
	Webrun  WebrunSection
}

func newDefaultConfig() *Config {
	return &Config{
		Webrun: WebrunSection{
			DisplayGeometry: "800x600",
			WebPort:         6080,
		},
		Service: ServiceConfig{
			KillMode:    KillModeControlGroup,
			KillSignal:  int(syscall.SIGTERM),
			SendSIGKILL: true,
			TimeoutStopSec: intPtr(2),
			User:        -1,
			Group:       -1,
		},
	}
}

func intPtr(n int) *int { return &n }

// ReadFile reads and parses a unit file from pathname.
func ReadFile(pathname string) (*Config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, fmt.Errorf("open unit file: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(NewParser(pathname), f)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads assignments from r via p and folds them into a Config,
// dispatching by lower-cased section name the way Config.read_file does.
// Unknown sections and unknown keys within [Service]/[Webrun] are silently
// ignored, for forward compatibility with newer unit files.
func Parse(p *Parser, r io.Reader) (*Config, error) {
	assignments, err := p.Parse(r)
	if err != nil {
		return nil, err
	}

	cfg := newDefaultConfig()
	for _, a := range assignments {
		switch sectionKey(a.Section) {
		case "service":
			if err := applyServiceKey(&cfg.Service, a.Key, a.Value); err != nil {
				return nil, fmt.Errorf("[Service] %s=%s: %w", a.Key, a.Value, err)
			}
		case "unit":
			if a.Key == "Description" {
				cfg.Unit.Description = a.Value
			}
		case "webrun":
			if err := applyWebrunKey(&cfg.Webrun, a.Key, a.Value); err != nil {
				return nil, fmt.Errorf("[Webrun] %s=%s: %w", a.Key, a.Value, err)
			}
		default:
			// Unrecognized section: ignored for forward-compatibility.
		}
	}
	return cfg, nil
}

func applyServiceKey(s *ServiceConfig, key, val string) error {
	switch key {
	case "SyslogIdentifier":
		s.SyslogIdentifier = val
	case "WorkingDirectory":
		s.WorkingDirectory = val
	case "ExecStart":
		spec, err := NewCommandSpec(val)
		if err != nil {
			return err
		}
		s.ExecStart = append(s.ExecStart, spec)
	case "ExecStartPre":
		spec, err := NewCommandSpec(val)
		if err != nil {
			return err
		}
		s.ExecStartPre = append(s.ExecStartPre, spec)
	case "ExecStartPost":
		spec, err := NewCommandSpec(val)
		if err != nil {
			return err
		}
		s.ExecStartPost = append(s.ExecStartPost, spec)
	case "ExecStop":
		spec, err := NewCommandSpec(val)
		if err != nil {
			return err
		}
		s.ExecStop = append(s.ExecStop, spec)
	case "ExecStopPost":
		spec, err := NewCommandSpec(val)
		if err != nil {
			return err
		}
		s.ExecStopPost = append(s.ExecStopPost, spec)
	case "KillMode":
		switch KillMode(val) {
		case KillModeControlGroup, KillModeProcess, KillModeNone:
			s.KillMode = KillMode(val)
		default:
			return fmt.Errorf("invalid kill mode: %q", val)
		}
	case "KillSignal":
		sig, err := ParseSignal(val)
		if err != nil {
			return err
		}
		s.KillSignal = sig
	case "SendSIGKILL":
		b, err := ParseBool(val)
		if err != nil {
			return err
		}
		s.SendSIGKILL = b
	case "TimeoutSec", "TimeoutStopSec":
		d, err := ParseDelay(val)
		if err != nil {
			return err
		}
		s.TimeoutStopSec = d
	case "User":
		uid, ok, err := ParseUser(val)
		if err != nil {
			return err
		}
		if ok {
			s.User = uid
		}
	case "Group":
		gid, ok, err := ParseGroup(val)
		if err != nil {
			return err
		}
		if ok {
			s.Group = gid
		}
	default:
		// unknown key: ignored
	}
	return nil
}

func applyWebrunKey(w *WebrunSection, key, val string) error {
	switch key {
	case "DisplayGeometry":
		w.DisplayGeometry = val
	case "WebPort":
		n, err := ParseInt(val)
		if err != nil {
			return err
		}
		w.WebPort = n
	}
	return nil
}

// IsOneshot reports whether the service is a Oneshot unit: more than one
// ExecStart entry. A single entry is Simple.
func (s *ServiceConfig) IsOneshot() bool {
	return len(s.ExecStart) > 1
}

// ResolveWorkingDirectory expands WorkingDirectory="~" to the target user's
// home directory. On lookup failure it falls back to the supervisor's own
// CWD and reports that fallback via the second return.
func (s *ServiceConfig) ResolveWorkingDirectory() (dir string, fellBack bool, err error) {
	if s.WorkingDirectory == "" {
		return "", false, nil
	}
	if s.WorkingDirectory != "~" {
		return s.WorkingDirectory, false, nil
	}
	home, lookupErr := homeForUID(s.User)
	if lookupErr != nil {
		cwd, err := os.Getwd()
		if err != nil {
			return "", true, fmt.Errorf("resolve fallback cwd: %w", err)
		}
		return cwd, true, nil
	}
	return home, false, nil
}

func homeForUID(uid int) (string, error) {
	if uid < 0 {
		return "", fmt.Errorf("no target user to resolve home directory for")
	}
	return lookupHomeByUID(uid)
}

// String implements a minimal round-trip-friendly description, used at
// logging call sites in place of a raw %v dump.
func (s ServiceConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ServiceConfig{SyslogIdentifier:%q ExecStart:%d KillMode:%s}", s.SyslogIdentifier, len(s.ExecStart), s.KillMode)
	return b.String()
}
