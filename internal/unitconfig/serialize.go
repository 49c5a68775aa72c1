package unitconfig

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders the recognized keys of cfg back into unit-file text.
// Parsing the result with Parse/ReadFile yields an equivalent Config (up to
// key order).
func Serialize(cfg *Config) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	if cfg.Unit.Description != "" {
		fmt.Fprintf(&b, "Description = %s\n", cfg.Unit.Description)
	}

	b.WriteString("\n[Service]\n")
	s := cfg.Service
	if s.SyslogIdentifier != "" {
		fmt.Fprintf(&b, "SyslogIdentifier = %s\n", s.SyslogIdentifier)
	}
	if s.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory = %s\n", s.WorkingDirectory)
	}
	for _, c := range s.ExecStartPre {
		fmt.Fprintf(&b, "ExecStartPre = %s\n", c.String())
	}
	for _, c := range s.ExecStart {
		fmt.Fprintf(&b, "ExecStart = %s\n", c.String())
	}
	for _, c := range s.ExecStartPost {
		fmt.Fprintf(&b, "ExecStartPost = %s\n", c.String())
	}
	for _, c := range s.ExecStop {
		fmt.Fprintf(&b, "ExecStop = %s\n", c.String())
	}
	for _, c := range s.ExecStopPost {
		fmt.Fprintf(&b, "ExecStopPost = %s\n", c.String())
	}
	fmt.Fprintf(&b, "KillMode = %s\n", s.KillMode)
	fmt.Fprintf(&b, "KillSignal = %d\n", s.KillSignal)
	fmt.Fprintf(&b, "SendSIGKILL = %s\n", boolStr(s.SendSIGKILL))
	if s.TimeoutStopSec == nil {
		b.WriteString("TimeoutStopSec = infinity\n")
	} else {
		fmt.Fprintf(&b, "TimeoutStopSec = %d\n", *s.TimeoutStopSec)
	}
	if s.User >= 0 {
		fmt.Fprintf(&b, "User = %s\n", strconv.Itoa(s.User))
	}
	if s.Group >= 0 {
		fmt.Fprintf(&b, "Group = %s\n", strconv.Itoa(s.Group))
	}

	b.WriteString("\n[Webrun]\n")
	fmt.Fprintf(&b, "DisplayGeometry = %s\n", cfg.Webrun.DisplayGeometry)
	fmt.Fprintf(&b, "WebPort = %d\n", cfg.Webrun.WebPort)

	return b.String()
}

func boolStr(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
