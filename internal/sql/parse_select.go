package sql

func parseSelect(t *tokenizer) (Statement, error) {
	stmt := &SelectStmt{}

	first, err := t.peek()
	if err != nil {
		return nil, err
	}
	if first == "*" {
		stmt.Fields = []string{"*"}
		t.pop()
	} else {
		for {
			field, err := t.peek()
			if err != nil {
				return nil, err
			}
			if !isName(field) {
				return nil, invalidCommand(t)
			}
			stmt.Fields = append(stmt.Fields, field)
			t.pop()

			next, err := t.peek()
			if err != nil {
				return nil, err
			}
			if next != "," {
				break
			}
			t.pop()
		}
	}

	from, err := t.peek()
	if err != nil {
		return nil, err
	}
	if from != "from" {
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
	stmt.Table = table
	t.pop()

	where, err := parseOptionalWhere(t)
	if err != nil {
		return nil, err
	}
	stmt.Where = where
	return stmt, nil
}
