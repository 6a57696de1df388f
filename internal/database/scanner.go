package database

import (
	"bufio"
	"io"
	"strings"
)

type scanState int

const (
	stateNormal scanState = iota
	stateQuoted
	stateLineComment
	stateBlockComment
)

// StatementScanner splits a SQL script into statements without loading it into memory.
// Semicolons inside quoted strings and identifiers are preserved, and comments are dropped.
type StatementScanner struct {
	r                *bufio.Reader
	backslashEscapes bool
	buf              strings.Builder
	stmt             string
	err              error
	done             bool
}

// NewStatementScanner creates a scanner. backslashEscapes follows Dialect.BackslashEscapes.
func NewStatementScanner(r io.Reader, backslashEscapes bool) *StatementScanner {
	return &StatementScanner{
		r:                bufio.NewReaderSize(r, 64*1024),
		backslashEscapes: backslashEscapes,
	}
}

// Scan advances to the next non-empty statement
func (s *StatementScanner) Scan() bool {
	if s.done {
		return false
	}

	state := stateNormal
	var quote rune
	s.buf.Reset()

	for {
		r, _, err := s.r.ReadRune()
		if err != nil {
			s.done = true
			if err != io.EOF {
				s.err = err
				return false
			}
			return s.emit()
		}

		switch state {
		case stateNormal:
			switch {
			case r == '\'' || r == '"' || r == '`':
				state, quote = stateQuoted, r
				s.buf.WriteRune(r)
			case r == '-' && s.peek('-'):
				s.r.ReadRune()
				state = stateLineComment
			case r == '/' && s.peek('*'):
				s.r.ReadRune()
				state = stateBlockComment
			case r == ';':
				if s.emit() {
					return true
				}
			default:
				s.buf.WriteRune(r)
			}

		case stateQuoted:
			s.buf.WriteRune(r)
			if r == '\\' && s.backslashEscapes && quote != '`' {
				next, _, err := s.r.ReadRune()
				if err == nil {
					s.buf.WriteRune(next)
				}
				continue
			}
			// a doubled quote closes and immediately reopens, which keeps the literal intact
			if r == quote {
				state = stateNormal
			}

		case stateLineComment:
			if r == '\n' {
				state = stateNormal
				s.buf.WriteByte('\n')
			}

		case stateBlockComment:
			if r == '*' && s.peek('/') {
				s.r.ReadRune()
				state = stateNormal
				s.buf.WriteByte(' ')
			}
		}
	}
}

// Statement returns the statement found by the last successful Scan
func (s *StatementScanner) Statement() string {
	return s.stmt
}

// Err returns the first read error other than io.EOF
func (s *StatementScanner) Err() error {
	return s.err
}

func (s *StatementScanner) peek(want byte) bool {
	b, err := s.r.Peek(1)
	return err == nil && b[0] == want
}

func (s *StatementScanner) emit() bool {
	stmt := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if stmt == "" {
		return false
	}
	s.stmt = stmt
	return true
}

// SplitStatements splits an in-memory script
func SplitStatements(script string, backslashEscapes bool) []string {
	scanner := NewStatementScanner(strings.NewReader(script), backslashEscapes)
	var out []string
	for scanner.Scan() {
		out = append(out, scanner.Statement())
	}
	return out
}
