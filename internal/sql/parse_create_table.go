package sql

var validFieldTypes = map[string]bool{
	"int32":  true,
	"int64":  true,
	"string": true,
}

// parseCreate handles "create table <name> (<field> <type>)+ (index <field>*)".
func parseCreate(t *tokenizer) (Statement, error) {
	kw, err := t.peek()
	if err != nil {
		return nil, err
	}
	if kw != "table" {
		return nil, invalidCommand(t)
	}
	t.pop()

	name, err := t.peek()
	if err != nil {
		return nil, err
	}
	if !isName(name) {
		return nil, invalidCommand(t)
	}

	stmt := &CreateTableStmt{Table: name}
	for {
		t.pop()
		field, err := t.peek()
		if err != nil {
			return nil, err
		}
		if field == "(" {
			break
		}
		if !isName(field) {
			return nil, invalidCommand(t)
		}

		t.pop()
		fieldType, err := t.peek()
		if err != nil {
			return nil, err
		}
		if !validFieldTypes[fieldType] {
			return nil, invalidCommand(t)
		}
		stmt.Fields = append(stmt.Fields, FieldDef{Name: field, Type: fieldType})

		t.pop()
		next, err := t.peek()
		if err != nil {
			return nil, err
		}
		switch next {
		case ",":
			continue
		case "(":
			goto indexClause
		default:
			return nil, invalidCommand(t)
		}
	}

indexClause:
	t.pop()
	idxKw, err := t.peek()
	if err != nil {
		return nil, err
	}
	if idxKw != "index" {
		return nil, invalidCommand(t)
	}

	for {
		t.pop()
		field, err := t.peek()
		if err != nil {
			return nil, err
		}
		if field == ")" {
			break
		}
		if !isName(field) {
			return nil, invalidCommand(t)
		}
		stmt.Index = append(stmt.Index, field)
	}
	t.pop()
	return stmt, nil
}

func parseDrop(t *tokenizer) (Statement, error) {
	kw, err := t.peek()
	if err != nil {
		return nil, err
	}
	if kw != "table" {
		return nil, invalidCommand(t)
	}
	t.pop()

	name, err := t.peek()
	if err != nil {
		return nil, err
	}
	if !isName(name) {
		return nil, invalidCommand(t)
	}
	t.pop()
	return &DropTableStmt{Table: name}, nil
}
