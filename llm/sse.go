package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseFrame is one server-sent event: the optional event name and the data
// payload joined from its data lines.
type sseFrame struct {
	event string
	data  string
}

// sseTokenizer assembles SSE frames from individual lines. It is agnostic to
// how the byte stream was chunked by the transport: only line boundaries
// matter.
type sseTokenizer struct {
	event string
	data  []string
}

// Feed consumes one line, without its trailing newline, and reports a
// completed frame when the line terminates one. Blank lines flush the frame
// in progress; comment lines and unrecognized fields are dropped. A blank
// line with no collected data yields nothing.
func (t *sseTokenizer) Feed(line string) (sseFrame, bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return t.Flush()
	}
	if strings.HasPrefix(line, ":") {
		// comment / keep-alive
		return sseFrame{}, false
	}
	if name, ok := strings.CutPrefix(line, "event:"); ok {
		t.event = strings.TrimSpace(name)
		return sseFrame{}, false
	}
	if payload, ok := strings.CutPrefix(line, "data:"); ok {
		t.data = append(t.data, strings.TrimPrefix(payload, " "))
		return sseFrame{}, false
	}
	return sseFrame{}, false
}

// Flush emits the frame in progress, if any data lines were collected, and
// resets the tokenizer either way. Multi-line data is joined with newlines.
func (t *sseTokenizer) Flush() (sseFrame, bool) {
	event, data := t.event, t.data
	t.event = ""
	t.data = nil
	if len(data) == 0 {
		return sseFrame{}, false
	}
	return sseFrame{event: event, data: strings.Join(data, "\n")}, true
}

// errStopScan is returned by a frame callback to end scanning early without
// reporting an error to the caller.
var errStopScan = errors.New("stop scanning")

// scanFrames reads an SSE body line by line and invokes fn for each complete
// frame. A frame left unterminated at end of stream is still delivered.
func scanFrames(r io.Reader, fn func(sseFrame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var tokenizer sseTokenizer
	for scanner.Scan() {
		frame, ok := tokenizer.Feed(scanner.Text())
		if !ok {
			continue
		}
		if err := fn(frame); err != nil {
			if err == errStopScan {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if frame, ok := tokenizer.Flush(); ok {
		if err := fn(frame); err != nil && err != errStopScan {
			return err
		}
	}
	return nil
}
