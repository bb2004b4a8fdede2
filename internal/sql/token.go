package sql

import (
	"github.com/jyafoo/godb/internal/dberr"
)

// tokenizer splits a raw statement into tokens on demand: symbols
// (><=*,()) are single-character tokens, quoted strings ('...'/"...")
// are one token with the quotes stripped, and runs of letters/digits/
// underscore are identifier/keyword/number tokens. peek is idempotent
// until pop advances past the cached token; once an error occurs it
// stays sticky for every subsequent peek, mirroring the original
// Tokenizer's "parse once, remember the failure" behavior.
type tokenizer struct {
	stat  []byte
	pos   int
	cur   string
	flush bool
	err   error
}

func newTokenizer(stat string) *tokenizer {
	return &tokenizer{stat: []byte(stat), flush: true}
}

func (t *tokenizer) peek() (string, error) {
	if t.err != nil {
		return "", t.err
	}
	if t.flush {
		tok, err := t.next()
		if err != nil {
			t.err = err
			return "", err
		}
		t.cur = tok
		t.flush = false
	}
	return t.cur, nil
}

func (t *tokenizer) pop() {
	t.flush = true
}

// errStat renders the statement with "<< " marking the position the
// tokenizer had reached when an error was raised, for error messages.
func (t *tokenizer) errStat() string {
	return string(t.stat[:t.pos]) + "<< " + string(t.stat[t.pos:])
}

func (t *tokenizer) popByte() {
	t.pos++
	if t.pos > len(t.stat) {
		t.pos = len(t.stat)
	}
}

func (t *tokenizer) peekByte() (byte, bool) {
	if t.pos == len(t.stat) {
		return 0, false
	}
	return t.stat[t.pos], true
}

func (t *tokenizer) next() (string, error) {
	if t.err != nil {
		return "", t.err
	}
	for {
		b, ok := t.peekByte()
		if !ok {
			return "", nil
		}
		if !isBlank(b) {
			break
		}
		t.popByte()
	}

	b, _ := t.peekByte()
	switch {
	case isSymbol(b):
		t.popByte()
		return string(b), nil
	case b == '\'' || b == '"':
		return t.nextQuoted()
	case isAlpha(b) || isDigit(b):
		return t.nextWord()
	default:
		return "", dberr.New(dberr.KindInvalidCommand, "unexpected character at "+t.errStat())
	}
}

func (t *tokenizer) nextWord() (string, error) {
	start := t.pos
	for {
		b, ok := t.peekByte()
		if !ok || !(isAlpha(b) || isDigit(b) || b == '_') {
			break
		}
		t.popByte()
	}
	return string(t.stat[start:t.pos]), nil
}

func (t *tokenizer) nextQuoted() (string, error) {
	quote, _ := t.peekByte()
	t.popByte()
	start := t.pos
	for {
		b, ok := t.peekByte()
		if !ok {
			return "", dberr.New(dberr.KindInvalidCommand, "unterminated quote in "+t.errStat())
		}
		if b == quote {
			s := string(t.stat[start:t.pos])
			t.popByte()
			return s, nil
		}
		t.popByte()
	}
}

func isBlank(b byte) bool { return b == '\n' || b == ' ' || b == '\t' }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isSymbol(b byte) bool {
	return b == '>' || b == '<' || b == '=' || b == '*' || b == ',' || b == '(' || b == ')'
}

// isName reports whether tok is a usable identifier: anything but a
// single non-letter character.
func isName(tok string) bool {
	if len(tok) == 1 && !isAlpha(tok[0]) {
		return false
	}
	return tok != ""
}
