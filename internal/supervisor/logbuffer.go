package supervisor

import "sync"

// logBufferCap is the number of most-recent lines a LogBuffer retains per
// unit, across both stdout and stderr.
const logBufferCap = 500

// LogBuffer is a thread-safe circular buffer of a unit's most recent stdio
// lines, giving internal/statusapi's log-tail endpoint something to read
// without the "persistent journal" the core's Non-goals exclude: nothing
// here survives process restart.
//
// Adapted from processmgr.logBuffer's fixed-array ring design; generalized
// from a package-private 500-cap array to an exported type any LineLogger
// consumer can attach to a unit.
type LogBuffer struct {
	entries [logBufferCap]string
	head    int
	size    int
	full    bool
	mu      sync.RWMutex
}

// Append adds entry, overwriting the oldest line once the buffer is full.
func (b *LogBuffer) Append(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % logBufferCap

	if b.full {
		return
	}
	b.size++
	if b.size == logBufferCap {
		b.full = true
	}
}

// Read returns the last n lines, newest first. n <= 0 or n > capacity is
// clamped to the buffer's capacity.
func (b *LogBuffer) Read(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > logBufferCap {
		n = logBufferCap
	}
	if n > b.size {
		n = b.size
	}

	result := make([]string, n)
	var newest int
	if b.full {
		newest = (b.head - 1 + logBufferCap) % logBufferCap
	} else {
		newest = b.size - 1
	}
	for i := 0; i < n; i++ {
		idx := (newest - i + logBufferCap) % logBufferCap
		result[i] = b.entries[idx]
	}
	return result
}

// ringSink is a LineLogger that both logs through zap (for centralized
// collection) and retains the line in a LogBuffer (for on-demand tailing
// via internal/statusapi).
type ringSink struct {
	zapLineLogger
	ring *LogBuffer
}

func newRingSink(u *ProcessUnit) ringSink {
	return ringSink{zapLineLogger: zapLineLogger{log: u.log}, ring: u.logs}
}

func (s ringSink) LogLine(tag, stream, text string) {
	s.zapLineLogger.LogLine(tag, stream, text)
	s.ring.Append("[" + stream + "] " + text)
}
