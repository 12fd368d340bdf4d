package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// Stream is a parsed event stream: the data payloads in order (the terminal
// "[DONE]" marker included) and the keepalive comments seen along the way.
type Stream struct {
	Data       []string
	Keepalives []string
}

// ParseStream parses an event-stream body. The wire format is data-only SSE:
// `data: <payload>` lines separated by blank lines, with comment lines
// (leading ':') carrying keepalives. Any other non-blank line fails the
// test.
func ParseStream(t *testing.T, body string) Stream {
	t.Helper()

	var s Stream
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		switch {
		case line == "":
		case strings.HasPrefix(line, "data: "):
			s.Data = append(s.Data, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			s.Keepalives = append(s.Keepalives, strings.TrimSpace(strings.TrimPrefix(line, ":")))
		default:
			t.Fatalf("unexpected stream line %d: %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan stream: %v", err)
	}
	return s
}

// Payloads returns the data payloads before the terminal marker and fails
// the test if the stream is unterminated or anything follows the marker.
func (s Stream) Payloads(t *testing.T) []string {
	t.Helper()
	if len(s.Data) == 0 || s.Data[len(s.Data)-1] != "[DONE]" {
		t.Fatalf("stream not terminated by [DONE]: %v", s.Data)
	}
	for _, d := range s.Data[:len(s.Data)-1] {
		if d == "[DONE]" {
			t.Fatalf("duplicate terminal marker in stream: %v", s.Data)
		}
	}
	return s.Data[:len(s.Data)-1]
}
