package exec

import "github.com/storm-repo/storm-framework-sub012/model"

// toDatabaseValue runs v through column's registered Converter (if any),
// the first stage of spec.md §6's parameter binding pipeline: domain value
// -> converter.ToDatabase -> dialect temporal normalisation -> driver bind.
// Dialect-level temporal normalisation and the final driver bind happen in
// the database/sql driver itself once args reach ExecContext/QueryContext,
// so this is the one stage Storm must perform explicitly.
func toDatabaseValue(m *model.Model, column string, v any) (any, error) {
	conv, ok := m.Converters[column]
	if !ok {
		return v, nil
	}
	return conv.ToDatabase(v)
}

// fromDatabaseValue reverses toDatabaseValue for a scanned column value,
// applied to every column as query result rows are materialised into
// records.
func fromDatabaseValue(m *model.Model, column string, v any) (any, error) {
	conv, ok := m.Converters[column]
	if !ok {
		return v, nil
	}
	return conv.FromDatabase(v)
}

// bindInsert extracts and converts every insertable column's value for rec,
// in m.InsertableColumns order, returning both the column name list and the
// matching, converter-normalised argument list for an INSERT's VALUES().
func bindInsert[T any](m *model.Model, access model.RecordAccess[T], rec *T) (cols []string, args []any, err error) {
	insertable := m.InsertableColumns()
	cols = make([]string, len(insertable))
	args = make([]any, len(insertable))
	for i, c := range insertable {
		v, err := access.ColumnValue(rec, c.Name)
		if err != nil {
			return nil, nil, err
		}
		dv, err := toDatabaseValue(m, c.Name, v)
		if err != nil {
			return nil, nil, err
		}
		cols[i] = c.Name
		args[i] = dv
	}
	return cols, args, nil
}
