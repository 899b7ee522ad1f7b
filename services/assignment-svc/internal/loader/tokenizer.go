package loader

import (
	"fmt"
	"strings"
)

// tokenKind тип лексемы таблицы корреспонденций
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokMeta   // целая строка "<KEY> value"
	tokOrigin // слово Origin
	tokNumber
	tokColon
	tokSemicolon
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokNewline:
		return "end of line"
	case tokMeta:
		return "metadata"
	case tokOrigin:
		return "Origin"
	case tokNumber:
		return "number"
	case tokColon:
		return "':'"
	case tokSemicolon:
		return "';'"
	default:
		return "unknown"
	}
}

type token struct {
	kind tokenKind
	text string
	line int
}

// tokenizer лексер формата:
//
//	file     := metadata? block*
//	metadata := ( "<" KEY ">" VALUE NEWLINE )* "<END OF METADATA>"
//	block    := "Origin" INT entry*
//	entry    := INT ":" NUMBER ( ";" | NEWLINE | EOF )
//
// "~" начинает комментарий до конца строки.
type tokenizer struct {
	src  string
	pos  int
	line int
	bol  bool // в начале строки
}

func newTokenizer(src string) *tokenizer {
	return &tokenizer{src: src, line: 1, bol: true}
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (t *tokenizer) next() (token, error) {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			t.pos++

		case c == '~':
			for t.pos < len(t.src) && t.src[t.pos] != '\n' {
				t.pos++
			}

		case c == '\n':
			tok := token{kind: tokNewline, line: t.line}
			t.pos++
			t.line++
			t.bol = true
			return tok, nil

		case c == '<' && t.bol:
			start := t.pos
			for t.pos < len(t.src) && t.src[t.pos] != '\n' {
				t.pos++
			}
			t.bol = false
			return token{kind: tokMeta, text: strings.TrimSpace(t.src[start:t.pos]), line: t.line}, nil

		case c == ':':
			t.pos++
			t.bol = false
			return token{kind: tokColon, text: ":", line: t.line}, nil

		case c == ';':
			t.pos++
			t.bol = false
			return token{kind: tokSemicolon, text: ";", line: t.line}, nil

		case isLetter(c) && c != 'e' && c != 'E':
			start := t.pos
			for t.pos < len(t.src) && isLetter(t.src[t.pos]) {
				t.pos++
			}
			t.bol = false
			word := t.src[start:t.pos]
			if word != "Origin" {
				return token{}, fmt.Errorf("line %d: unexpected word %q", t.line, word)
			}
			return token{kind: tokOrigin, text: word, line: t.line}, nil

		case isNumberByte(c):
			start := t.pos
			for t.pos < len(t.src) && isNumberByte(t.src[t.pos]) {
				t.pos++
			}
			t.bol = false
			return token{kind: tokNumber, text: t.src[start:t.pos], line: t.line}, nil

		default:
			return token{}, fmt.Errorf("line %d: unexpected character %q", t.line, c)
		}
	}
	return token{kind: tokEOF, line: t.line}, nil
}
