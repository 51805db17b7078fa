package asm

import (
	"fmt"
	"strconv"
)

// lineLexer scans the operands of one assembler line.
type lineLexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // position after current char
	ch           byte // current char, 0 at end of line
}

func newLineLexer(input string) *lineLexer {
	l := &lineLexer{input: input}
	l.readChar()
	return l
}

func (l *lineLexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *lineLexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// atEnd reports whether only whitespace or a comment remains.
func (l *lineLexer) atEnd() bool {
	l.skipWhitespace()
	return l.ch == 0 || l.ch == ';' || l.ch == '#'
}

// comment returns the text after ';', or "" when the line has none.
func (l *lineLexer) comment() string {
	l.skipWhitespace()
	if l.ch != ';' {
		return ""
	}
	return l.input[l.readPosition:]
}

// word reads a bare token: mnemonic, register, number, attribute.
func (l *lineLexer) word() string {
	l.skipWhitespace()
	start := l.position
	for l.ch != 0 && l.ch != ' ' && l.ch != '\t' && l.ch != ',' && l.ch != ';' && l.ch != '(' && l.ch != ')' {
		l.readChar()
	}
	return l.input[start:l.position]
}

// quoted reads a Go-quoted string literal.
func (l *lineLexer) quoted() (string, error) {
	l.skipWhitespace()
	if l.ch != '"' {
		return "", fmt.Errorf("expected string literal at %q", l.rest())
	}
	lit, err := strconv.QuotedPrefix(l.input[l.position:])
	if err != nil {
		return "", fmt.Errorf("bad string literal at %q", l.rest())
	}
	s, err := strconv.Unquote(lit)
	if err != nil {
		return "", err
	}
	for i := 0; i < len(lit); i++ {
		l.readChar()
	}
	return s, nil
}

func (l *lineLexer) expect(ch byte) error {
	l.skipWhitespace()
	if l.ch != ch {
		return fmt.Errorf("expected %q at %q", ch, l.rest())
	}
	l.readChar()
	return nil
}

// accept consumes ch if it is next.
func (l *lineLexer) accept(ch byte) bool {
	l.skipWhitespace()
	if l.ch == ch {
		l.readChar()
		return true
	}
	return false
}

// call reads `name(` and returns name.
func (l *lineLexer) call() (string, error) {
	name := l.word()
	if err := l.expect('('); err != nil {
		return "", err
	}
	return name, nil
}

// quotedList reads `"a", "b")` after an opening parenthesis.
func (l *lineLexer) quotedList() ([]string, error) {
	var out []string
	if l.accept(')') {
		return out, nil
	}
	for {
		s, err := l.quoted()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if l.accept(')') {
			return out, nil
		}
		if err := l.expect(','); err != nil {
			return nil, err
		}
	}
}

func (l *lineLexer) rest() string {
	if l.position >= len(l.input) {
		return ""
	}
	return l.input[l.position:]
}
