package sql

// parseBegin handles "begin" or "begin isolation level (read
// committed | repeatable read)".
func parseBegin(t *tokenizer) (Statement, error) {
	isolation, err := t.peek()
	if err != nil {
		return nil, err
	}
	if isolation == "" {
		return &BeginStmt{}, nil
	}
	if isolation != "isolation" {
		return nil, invalidCommand(t)
	}
	t.pop()

	level, err := t.peek()
	if err != nil {
		return nil, err
	}
	if level != "level" {
		return nil, invalidCommand(t)
	}
	t.pop()

	first, err := t.peek()
	if err != nil {
		return nil, err
	}
	switch first {
	case "read":
		t.pop()
		second, err := t.peek()
		if err != nil {
			return nil, err
		}
		if second != "committed" {
			return nil, invalidCommand(t)
		}
		t.pop()
		return &BeginStmt{}, nil
	case "repeatable":
		t.pop()
		second, err := t.peek()
		if err != nil {
			return nil, err
		}
		if second != "read" {
			return nil, invalidCommand(t)
		}
		t.pop()
		return &BeginStmt{RepeatableRead: true}, nil
	default:
		return nil, invalidCommand(t)
	}
}

func parseCommit(t *tokenizer) (Statement, error) {
	return &CommitStmt{}, nil
}

func parseAbort(t *tokenizer) (Statement, error) {
	return &AbortStmt{}, nil
}

func parseShow(t *tokenizer) (Statement, error) {
	return &ShowStmt{}, nil
}
