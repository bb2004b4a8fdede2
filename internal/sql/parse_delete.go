package sql

func parseDelete(t *tokenizer) (Statement, error) {
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
	t.pop()

	where, err := parseWhereClause(t)
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{Table: table, Where: where}, nil
}
