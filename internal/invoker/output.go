package invoker

import (
	"bytes"
	"strings"
	"sync"
)

const detailTailBytes = 2048

// splits process output into lines, forwards them to the observer and
// keeps the last few KB of stderr for failure details.
// one collector is shared by stdout and stderr writers
type collector struct {
	mu     sync.Mutex
	onLine func(Line)
	tail   []byte
}

func (c *collector) writer(stream string) *lineWriter {
	return &lineWriter{stream: stream, c: c}
}

func (c *collector) emit(stream, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stream == "stderr" {
		c.tail = append(c.tail, text...)
		c.tail = append(c.tail, '\n')

		if over := len(c.tail) - detailTailBytes; over > 0 {
			c.tail = c.tail[over:]
		}
	}

	if c.onLine != nil {
		c.onLine(Line{Stream: stream, Text: text})
	}
}

func (c *collector) stderrTail() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return strings.TrimSpace(string(c.tail))
}

type lineWriter struct {
	stream string
	c      *collector
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		w.c.emit(w.stream, strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// emits whatever is left without a trailing newline
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.c.emit(w.stream, strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}
