package sql

// parseWhereClause parses "where <expr> [and|or <expr>]", assuming the
// leading "where" has not yet been consumed.
func parseWhereClause(t *tokenizer) (*Where, error) {
	kw, err := t.peek()
	if err != nil {
		return nil, err
	}
	if kw != "where" {
		return nil, invalidCommand(t)
	}
	t.pop()

	exp1, err := parseSingleExpr(t)
	if err != nil {
		return nil, err
	}

	w := &Where{Expr1: exp1}

	logicOp, err := t.peek()
	if err != nil {
		return nil, err
	}
	if logicOp == "" {
		return w, nil
	}
	if logicOp != "and" && logicOp != "or" {
		return nil, invalidCommand(t)
	}
	w.LogicOp = logicOp
	t.pop()

	exp2, err := parseSingleExpr(t)
	if err != nil {
		return nil, err
	}
	w.Expr2 = exp2
	return w, nil
}

func parseSingleExpr(t *tokenizer) (SingleExpr, error) {
	field, err := t.peek()
	if err != nil {
		return SingleExpr{}, err
	}
	if !isName(field) {
		return SingleExpr{}, invalidCommand(t)
	}
	t.pop()

	op, err := t.peek()
	if err != nil {
		return SingleExpr{}, err
	}
	if op != "=" && op != ">" && op != "<" {
		return SingleExpr{}, invalidCommand(t)
	}
	t.pop()

	value, err := t.peek()
	if err != nil {
		return SingleExpr{}, err
	}
	t.pop()

	return SingleExpr{Field: field, Op: op, Value: value}, nil
}

// parseOptionalWhere parses a trailing where clause, or returns nil if
// the tokenizer is already drained.
func parseOptionalWhere(t *tokenizer) (*Where, error) {
	tok, err := t.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, nil
	}
	return parseWhereClause(t)
}
