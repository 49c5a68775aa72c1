package unitconfig

import (
	"strings"
	"testing"
)

func TestParseEmptyInput(t *testing.T) {
	out, err := NewParser("").Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no assignments, got %v", out)
	}
}

func TestParseCommentOnlyInput(t *testing.T) {
	const src = "# a comment\n\n   # another\n"
	out, err := NewParser("").Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no assignments, got %v", out)
	}
}

func TestAssignmentOutsideSectionIsParseError(t *testing.T) {
	const src = "Key = Value\n"
	_, err := NewParser("unit.service").Parse(strings.NewReader(src))
	if err == nil {
		t.Fatal("expected ParseError, got nil")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Line != 1 {
		t.Fatalf("expected error on line 1, got %d", pe.Line)
	}
	if pe.Filename != "unit.service" {
		t.Fatalf("expected filename propagated, got %q", pe.Filename)
	}
}

func TestValueWithInnerWhitespacePreservedVerbatim(t *testing.T) {
	const src = "[Service]\nExecStart = /bin/echo hello   world\n"
	out, err := NewParser("").Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(out))
	}
	if out[0].Value != "/bin/echo hello   world" {
		t.Fatalf("inner whitespace not preserved: %q", out[0].Value)
	}
}

func TestMultiAssignmentSameKeyAccumulatesInFileOrder(t *testing.T) {
	const src = "[Service]\nExecStartPre = /bin/one\nExecStartPre = /bin/two\n"
	cfg, err := Parse(NewParser(""), strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Service.ExecStartPre) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cfg.Service.ExecStartPre))
	}
	if cfg.Service.ExecStartPre[0].Argv[0] != "/bin/one" || cfg.Service.ExecStartPre[1].Argv[0] != "/bin/two" {
		t.Fatalf("file order not preserved: %+v", cfg.Service.ExecStartPre)
	}
}

func TestUnrecognizedLineIsParseError(t *testing.T) {
	const src = "[Service]\nthis is not valid\n"
	_, err := NewParser("").Parse(strings.NewReader(src))
	if err == nil {
		t.Fatal("expected ParseError, got nil")
	}
}

func TestSectionHeaderCaseFolded(t *testing.T) {
	const src = "[SERVICE]\nSyslogIdentifier = demo\n"
	cfg, err := Parse(NewParser(""), strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.SyslogIdentifier != "demo" {
		t.Fatalf("expected case-folded section dispatch, got %+v", cfg.Service)
	}
}

func TestUnknownKeyIgnored(t *testing.T) {
	const src = "[Service]\nSomeFutureKey = whatever\nSyslogIdentifier = demo\n"
	cfg, err := Parse(NewParser(""), strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.SyslogIdentifier != "demo" {
		t.Fatalf("expected known key still applied, got %+v", cfg.Service)
	}
}

func TestRoundTrip(t *testing.T) {
	const src = `[Unit]
Description = demo unit

[Service]
SyslogIdentifier = demo
ExecStartPre = -/bin/false
ExecStart = /bin/sleep 3600
ExecStop = /bin/kill -TERM $MAINPID
KillMode = process
KillSignal = SIGTERM
SendSIGKILL = yes
TimeoutStopSec = 2
`
	cfg1, err := Parse(NewParser(""), strings.NewReader(src))
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}

	serialized := Serialize(cfg1)
	cfg2, err := Parse(NewParser(""), strings.NewReader(serialized))
	if err != nil {
		t.Fatalf("second parse: %v\n%s", err, serialized)
	}

	if cfg1.Service.SyslogIdentifier != cfg2.Service.SyslogIdentifier {
		t.Fatalf("SyslogIdentifier mismatch: %q vs %q", cfg1.Service.SyslogIdentifier, cfg2.Service.SyslogIdentifier)
	}
	if len(cfg1.Service.ExecStart) != len(cfg2.Service.ExecStart) {
		t.Fatalf("ExecStart length mismatch")
	}
	if cfg1.Service.KillMode != cfg2.Service.KillMode {
		t.Fatalf("KillMode mismatch: %v vs %v", cfg1.Service.KillMode, cfg2.Service.KillMode)
	}
	if cfg1.Service.KillSignal != cfg2.Service.KillSignal {
		t.Fatalf("KillSignal mismatch: %v vs %v", cfg1.Service.KillSignal, cfg2.Service.KillSignal)
	}
	if *cfg1.Service.TimeoutStopSec != *cfg2.Service.TimeoutStopSec {
		t.Fatalf("TimeoutStopSec mismatch")
	}
}
