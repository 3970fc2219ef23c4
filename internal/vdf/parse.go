package vdf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax marks malformed KeyValues input.
var ErrSyntax = errors.New("vdf syntax error")

type tokenKind int

const (
	tokString tokenKind = iota
	tokOpen
	tokClose
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	src  []rune
	pos  int
	line int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		switch {
		case r == '\n':
			l.line++
			l.pos++
		case r == ' ' || r == '\t' || r == '\r' || r == '\ufeff':
			l.pos++
		case r == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case r == '{':
			l.pos++
			return token{kind: tokOpen, line: l.line}, nil
		case r == '}':
			l.pos++
			return token{kind: tokClose, line: l.line}, nil
		case r == '"':
			return l.quoted()
		case r == '[':
			// Platform conditionals such as [$WIN32] are ignored.
			for l.pos < len(l.src) && l.src[l.pos] != ']' && l.src[l.pos] != '\n' {
				l.pos++
			}
			if l.pos < len(l.src) && l.src[l.pos] == ']' {
				l.pos++
			}
		default:
			return l.bare(), nil
		}
	}
	return token{kind: tokEOF, line: l.line}, nil
}

func (l *lexer) quoted() (token, error) {
	start := l.line
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		switch r {
		case '"':
			l.pos++
			return token{kind: tokString, text: b.String(), line: start}, nil
		case '\\':
			if l.pos+1 < len(l.src) {
				l.pos++
				switch esc := l.src[l.pos]; esc {
				case 'n':
					b.WriteRune('\n')
				case 't':
					b.WriteRune('\t')
				case '\\', '"':
					b.WriteRune(esc)
				default:
					b.WriteRune('\\')
					b.WriteRune(esc)
				}
				l.pos++
				continue
			}
			b.WriteRune(r)
		case '\n':
			l.line++
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		l.pos++
	}
	return token{}, fmt.Errorf("%w: unterminated string starting on line %d", ErrSyntax, start+1)
}

func (l *lexer) bare() token {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '{' || r == '}' || r == '"' {
			break
		}
		l.pos++
	}
	return token{kind: tokString, text: string(l.src[start:l.pos]), line: l.line}
}

// Parse reads a KeyValues document. The returned root is an unnamed section
// whose children are the top-level keys.
func Parse(data []byte) (*Node, error) {
	lx := &lexer{src: []rune(string(data))}
	root := NewSection("")
	if err := parseChildren(lx, root, false); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseFrom parses data starting at the first line that begins with the
// quoted key. Tool output such as steamcmd's carries log noise before the
// document.
func ParseFrom(data []byte, key string) (*Node, error) {
	text := string(data)
	marker := `"` + key + `"`
	idx := -1
	for offset := 0; offset < len(text); {
		next := strings.Index(text[offset:], marker)
		if next < 0 {
			break
		}
		pos := offset + next
		lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
		if strings.TrimSpace(text[lineStart:pos]) == "" {
			idx = lineStart
			break
		}
		offset = pos + len(marker)
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: key %q not found", ErrSyntax, key)
	}
	text = text[idx:]
	lx := &lexer{src: []rune(text)}
	root := NewSection("")
	if err := parseOne(lx, root); err != nil {
		return nil, err
	}
	return root, nil
}

func parseChildren(lx *lexer, parent *Node, nested bool) error {
	for {
		tok, err := lx.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokEOF:
			if nested {
				return fmt.Errorf("%w: missing closing brace", ErrSyntax)
			}
			return nil
		case tokClose:
			if !nested {
				return fmt.Errorf("%w: unexpected '}' on line %d", ErrSyntax, tok.line+1)
			}
			return nil
		case tokOpen:
			return fmt.Errorf("%w: unexpected '{' on line %d", ErrSyntax, tok.line+1)
		case tokString:
			if err := parseValue(lx, parent, tok.text); err != nil {
				return err
			}
		}
	}
}

// parseOne reads a single key and its value into parent.
func parseOne(lx *lexer, parent *Node) error {
	tok, err := lx.next()
	if err != nil {
		return err
	}
	if tok.kind != tokString {
		return fmt.Errorf("%w: expected key on line %d", ErrSyntax, tok.line+1)
	}
	return parseValue(lx, parent, tok.text)
}

func parseValue(lx *lexer, parent *Node, key string) error {
	tok, err := lx.next()
	if err != nil {
		return err
	}
	switch tok.kind {
	case tokString:
		parent.Append(&Node{Key: key, Value: tok.text})
		return nil
	case tokOpen:
		child := NewSection(key)
		if err := parseChildren(lx, child, true); err != nil {
			return err
		}
		parent.Append(child)
		return nil
	default:
		return fmt.Errorf("%w: key %q has no value (line %d)", ErrSyntax, key, tok.line+1)
	}
}
