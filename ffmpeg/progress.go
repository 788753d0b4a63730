package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ffmpeg reports elapsed stream time on stderr as `time=HH:MM:SS.cc`.
// This grammar is the progress contract with the encoder and must not
// change.
var timeMarker = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// parseElapsed extracts the elapsed seconds from one progress line.
func parseElapsed(line string) (float64, bool) {
	m := timeMarker.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, err1 := strconv.Atoi(m[1])
	minutes, err2 := strconv.Atoi(m[2])
	seconds, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	return float64(hours)*3600 + float64(minutes)*60 + seconds, true
}

// progressMonitor turns raw encoder output lines into store-ready
// progress values. Progress is monotone and clamped to 99 while the
// process still runs (100 is reserved for completion); writes are
// throttled to one per interval with the last observed value always
// winning. It also keeps the bounded diagnostic tail used on failure.
type progressMonitor struct {
	total    float64
	interval time.Duration
	tail     *tailBuffer

	current   int
	written   int
	lastWrite time.Time
}

func newProgressMonitor(totalDuration float64, interval time.Duration, tailLines int) *progressMonitor {
	return &progressMonitor{
		total:    totalDuration,
		interval: interval,
		tail:     newTailBuffer(tailLines),
		current:  -1,
		written:  -1,
	}
}

// observe consumes one output line. It returns (value, true) when the
// throttle window permits a store write.
func (m *progressMonitor) observe(line string, now time.Time) (int, bool) {
	m.tail.add(line)

	elapsed, ok := parseElapsed(line)
	if !ok || m.total <= 0 {
		return 0, false
	}

	p := int(elapsed / m.total * 100)
	if p > 99 {
		p = 99
	}
	if p > m.current {
		m.current = p
	}

	if m.current > m.written && (m.lastWrite.IsZero() || now.Sub(m.lastWrite) >= m.interval) {
		m.written = m.current
		m.lastWrite = now
		return m.current, true
	}
	return 0, false
}

// flush returns the last observed value if a throttle window swallowed
// it. Called once after the stream ends.
func (m *progressMonitor) flush() (int, bool) {
	if m.current > m.written {
		m.written = m.current
		return m.current, true
	}
	return 0, false
}

func (m *progressMonitor) tailText() string {
	return m.tail.text()
}

// maxTailLineBytes caps each stored line so a pathological encoder
// cannot blow up the diagnostic tail.
const maxTailLineBytes = 512

// tailBuffer is a fixed-size ring over the most recent output lines.
type tailBuffer struct {
	lines []string
	next  int
	full  bool
}

func newTailBuffer(n int) *tailBuffer {
	if n <= 0 {
		n = 1
	}
	return &tailBuffer{lines: make([]string, n)}
}

func (b *tailBuffer) add(line string) {
	if len(line) > maxTailLineBytes {
		line = line[:maxTailLineBytes]
	}
	b.lines[b.next] = line
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
}

func (b *tailBuffer) text() string {
	var out []string
	if b.full {
		out = append(out, b.lines[b.next:]...)
	}
	out = append(out, b.lines[:b.next]...)
	return strings.Join(out, "\n")
}
