package sql

import (
	"github.com/jyafoo/godb/internal/dberr"
)

// Parse tokenizes stat and dispatches on its leading keyword, then
// verifies the tokenizer is fully drained — any trailing token makes
// the whole statement invalid, matching the original Parser's
// leading-switch-then-drain-check shape.
func Parse(stat string) (Statement, error) {
	t := newTokenizer(stat)
	tok, err := t.peek()
	if err != nil {
		return nil, err
	}
	t.pop()

	var result Statement
	switch tok {
	case "begin":
		result, err = parseBegin(t)
	case "commit":
		result, err = parseCommit(t)
	case "abort":
		result, err = parseAbort(t)
	case "show":
		result, err = parseShow(t)
	case "create":
		result, err = parseCreate(t)
	case "drop":
		result, err = parseDrop(t)
	case "select":
		result, err = parseSelect(t)
	case "insert":
		result, err = parseInsert(t)
	case "update":
		result, err = parseUpdate(t)
	case "delete":
		result, err = parseDelete(t)
	default:
		return nil, dberr.New(dberr.KindInvalidCommand, "unrecognized statement: "+t.errStat())
	}
	if err != nil {
		return nil, err
	}

	trailing, err := t.peek()
	if err != nil {
		return nil, err
	}
	if trailing != "" {
		return nil, dberr.New(dberr.KindInvalidCommand, "unexpected trailing input: "+t.errStat())
	}
	return result, nil
}

func invalidCommand(t *tokenizer) error {
	return dberr.New(dberr.KindInvalidCommand, "invalid statement: "+t.errStat())
}
