package supervisor

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"
)

// LineLogger is the abstract sink StdioPump forwards tagged lines to. Unit
// wires a zap-backed implementation by default, but the core never imports
// zap from this interface so it stays testable with a fake sink.
type LineLogger interface {
	LogLine(tag, stream, text string)
}

// zapLineLogger is the production LineLogger, logging each line at Debug
// the way processmgr.process's handleStdout/handleStderr append to the log
// buffer.
type zapLineLogger struct {
	log *zap.Logger
}

func (z zapLineLogger) LogLine(tag, stream, text string) {
	z.log.Debug(text, zap.String("tag", tag), zap.String("stream", stream))
}

// StdioPump reads one of a child's stdout/stderr streams line by line,
// tags each line, and forwards it to a LineLogger. It is cancellable via
// context and exits cleanly on EOF.
type StdioPump struct {
	base   string
	pid    atomic.Int64 // 0 until known
	stream string       // "stdout" | "stderr"
	sink   LineLogger
	log    *zap.Logger

	wg sync.WaitGroup
}

// NewStdioPump constructs a pump that will read r and forward to sink,
// tagged with base until SetPID is called.
func NewStdioPump(log *zap.Logger, base, stream string, sink LineLogger) *StdioPump {
	return &StdioPump{base: base, stream: stream, sink: sink, log: log}
}

// SetPID updates the tag from base to base[pid], the moment the child pid
// is known.
func (p *StdioPump) SetPID(pid int) {
	p.pid.Store(int64(pid))
}

func (p *StdioPump) tag() string {
	if pid := p.pid.Load(); pid != 0 {
		return p.base + "[" + strconv.FormatInt(pid, 10) + "]"
	}
	return p.base
}

// Run reads r until EOF or ctx cancellation, emitting one LogLine call per
// line. It returns when the pump has stopped; callers should arrange for r
// to be closed on cancellation since bufio.Scanner has no cancellation
// hook of its own.
func (p *StdioPump) Run(ctx context.Context, r io.Reader) {
	p.wg.Add(1)
	defer p.wg.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimRight(sc.Text(), "\r\n")
		line = toValidUTF8(line)
		p.sink.LogLine(p.tag(), p.stream, line)
	}

	if err := sc.Err(); err != nil {
		p.log.Debug("stdio pump read error", zap.String("tag", p.tag()), zap.String("stream", p.stream), zap.Error(err))
	}
}

// Wait blocks until Run has returned.
func (p *StdioPump) Wait() {
	p.wg.Wait()
}

func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

