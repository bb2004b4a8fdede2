package sql

func parseInsert(t *tokenizer) (Statement, error) {
	into, err := t.peek()
	if err != nil {
		return nil, err
	}
	if into != "into" {
		return nil, invalidCommand(t)
	}
	t.pop()

	table, err := t.peek()
	if err != nil {
		return nil, err
	}
	if !isName(table) {
		return nil, invalidCommand(t)
	}
	t.pop()

	values, err := t.peek()
	if err != nil {
		return nil, err
	}
	if values != "values" {
		return nil, invalidCommand(t)
	}

	stmt := &InsertStmt{Table: table}
	for {
		t.pop()
		v, err := t.peek()
		if err != nil {
			return nil, err
		}
		if v == "" {
			break
		}
		stmt.Values = append(stmt.Values, v)
	}
	return stmt, nil
}
