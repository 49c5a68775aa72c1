package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeSink struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeSink) LogLine(tag, stream, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, tag+"|"+stream+"|"+text)
}

func (f *fakeSink) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func TestStdioPumpTagsBeforeAndAfterSetPID(t *testing.T) {
	sink := &fakeSink{}
	p := NewStdioPump(zap.NewNop(), "myunit", "stdout", sink)

	r := strings.NewReader("first line\n")
	p.Run(context.Background(), r)

	lines := sink.snapshot()
	if len(lines) != 1 || lines[0] != "myunit|stdout|first line" {
		t.Fatalf("unexpected lines before SetPID: %v", lines)
	}

	p.SetPID(4242)
	r2 := strings.NewReader("second line\n")
	p.Run(context.Background(), r2)

	lines = sink.snapshot()
	if len(lines) != 2 || lines[1] != "myunit[4242]|stdout|second line" {
		t.Fatalf("unexpected lines after SetPID: %v", lines)
	}
}

func TestStdioPumpRepairsInvalidUTF8(t *testing.T) {
	sink := &fakeSink{}
	p := NewStdioPump(zap.NewNop(), "u", "stderr", sink)

	bad := append([]byte("broken: "), 0xff, 0xfe)
	bad = append(bad, '\n')
	p.Run(context.Background(), strings.NewReader(string(bad)))

	lines := sink.snapshot()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	if strings.Contains(lines[0], "\xff") {
		t.Fatalf("expected invalid bytes to be repaired, got %q", lines[0])
	}
}

func TestStdioPumpStopsOnEOF(t *testing.T) {
	sink := &fakeSink{}
	p := NewStdioPump(zap.NewNop(), "u", "stdout", sink)
	p.Run(context.Background(), strings.NewReader(""))
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected no lines for empty input")
	}
}
