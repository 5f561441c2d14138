// Package protocol converts between raw chat-protocol lines and
// [Message] values.  Only the framing needed by the connection core is
// handled here: optional source prefix, command and parameters with an
// optional trailing parameter.  Tags and CTCP are left to higher
// layers.
package protocol

import (
	"fmt"
	"strings"

	ircerr "ircc/internal/errors"
)

// MaxLineLength is the longest line (including CRLF) a server is
// expected to send.
const MaxLineLength = 512

// Message is one decoded protocol line.  Treat it as immutable.
type Message struct {
	Source  string   // sender prefix without the leading ':' (may be empty)
	Command string   // upper-cased command or three-digit numeric
	Params  []string // ordered parameters, trailing one included
}

// New builds a message with an upper-cased command.
func New(command string, params ...string) Message {
	return Message{Command: strings.ToUpper(command), Params: params}
}

// Param returns the i-th parameter or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// String renders the message in wire form without the line terminator.
func (m Message) String() string {
	var b strings.Builder
	if m.Source != "" {
		b.WriteByte(':')
		b.WriteString(m.Source)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		last := i == len(m.Params)-1
		if last && (p == "" || strings.HasPrefix(p, ":") || strings.ContainsRune(p, ' ')) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Encode renders the message with a CRLF terminator.  Parameters other
// than the last must not contain spaces or start with ':'.
func Encode(m Message) ([]byte, error) {
	if m.Command == "" {
		return nil, fmt.Errorf("encode: empty command")
	}
	for i, p := range m.Params {
		if strings.ContainsAny(p, "\r\n\x00") {
			return nil, fmt.Errorf("encode: parameter %d contains a line break or NUL", i)
		}
		if i < len(m.Params)-1 && (p == "" || strings.HasPrefix(p, ":") || strings.ContainsRune(p, ' ')) {
			return nil, fmt.Errorf("encode: middle parameter %d %q is not a single word", i, p)
		}
	}
	line := m.String() + "\r\n"
	if len(line) > MaxLineLength {
		return nil, fmt.Errorf("encode: line is %d bytes, limit %d", len(line), MaxLineLength)
	}
	return []byte(line), nil
}

// Decode parses a single line (terminator optional).  Failures are
// returned as *errors.DecodeError.
func Decode(line string) (Message, error) {
	raw := line
	line = strings.TrimRight(line, "\r\n")

	fail := func(format string, args ...interface{}) (Message, error) {
		return Message{}, &ircerr.DecodeError{Line: raw, Err: fmt.Errorf(format, args...)}
	}

	if strings.TrimSpace(line) == "" {
		return fail("empty line")
	}

	var m Message
	if line[0] == ':' {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return fail("prefix without command")
		}
		m.Source = line[1:sp]
		if m.Source == "" {
			return fail("empty prefix")
		}
		line = line[sp+1:]
	}

	line = strings.TrimLeft(line, " ")
	cmd, rest, _ := strings.Cut(line, " ")
	if cmd == "" {
		return fail("missing command")
	}
	if !validCommand(cmd) {
		return fail("malformed command %q", cmd)
	}
	m.Command = strings.ToUpper(cmd)

	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			m.Params = append(m.Params, rest[1:])
			break
		}
		var p string
		p, rest, _ = strings.Cut(rest, " ")
		m.Params = append(m.Params, p)
	}
	return m, nil
}

// validCommand accepts a run of letters or exactly three digits.
func validCommand(cmd string) bool {
	if len(cmd) == 3 && isDigit(cmd[0]) && isDigit(cmd[1]) && isDigit(cmd[2]) {
		return true
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
