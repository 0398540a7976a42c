package declare

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// declError reports a semantic problem at a source position.
func declError(pos lexer.Position, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidDeclaration, pos, fmt.Sprintf(format, args...))
}

func convertFile(file *File) (schema.Tables, error) {
	tables := schema.Tables{}
	for _, t := range file.Tables {
		if _, dup := tables[t.Name]; dup {
			return nil, declError(t.Pos, "table %q declared twice", t.Name)
		}
		table, err := convertTable(t)
		if err != nil {
			return nil, err
		}
		tables[t.Name] = table
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

func convertTable(t *Table) (schema.TableInfo, error) {
	var (
		cols []schema.ColumnInfo
		opts []schema.TableOption
	)
	for _, m := range t.Members {
		switch {
		case m.Column != nil:
			col, err := convertColumn(m.Column)
			if err != nil {
				return schema.TableInfo{}, err
			}
			cols = append(cols, col)
		case m.Block != nil:
			opt, err := convertBlock(m.Block)
			if err != nil {
				return schema.TableInfo{}, err
			}
			opts = append(opts, opt)
		}
	}

	qualified := t.QualifiedType
	if qualified == "" {
		qualified = t.Name
	}
	table, err := schema.NewTableInfo(t.Name, qualified, cols, opts...)
	if err != nil {
		return schema.TableInfo{}, fmt.Errorf("%s: %w", t.Pos, err)
	}
	return table, nil
}

func convertColumn(c *Column) (schema.ColumnInfo, error) {
	col := schema.ColumnInfo{Name: c.Name, Type: schema.ColumnType(c.Type)}
	if !col.Type.Known() {
		return col, declError(c.Pos, "column %q has unknown type %q", c.Name, c.Type)
	}
	for _, attr := range c.Attributes {
		switch attr.Name {
		case "unique":
			col.Unique = true
		case "index":
			col.Index = true
		case "searchable":
			col.Searchable = true
		case "orderable":
			col.Orderable = true
		case "default":
			if len(attr.Arguments) != 1 {
				return col, declError(attr.Pos, "@default takes exactly one value")
			}
			lit, err := defaultLiteral(attr.Arguments[0].Value)
			if err != nil {
				return col, err
			}
			col = col.WithDefault(lit)
		case "references":
			fk, err := convertReference(attr)
			if err != nil {
				return col, err
			}
			col = col.WithForeignKey(fk)
		default:
			return col, declError(attr.Pos, "unknown column attribute @%s", attr.Name)
		}
	}
	return col, nil
}

// defaultLiteral turns a @default value into the SQL literal stored on the column.
func defaultLiteral(v *Value) (string, error) {
	switch {
	case v.String != nil:
		return "'" + strings.ReplaceAll(*v.String, "'", "''") + "'", nil
	case v.Number != nil:
		return *v.Number, nil
	case v.Ref != nil:
		switch strings.ToLower(v.Ref.String()) {
		case "now", "current_timestamp":
			return schema.CurrentTimestamp, nil
		case "true":
			return "1", nil
		case "false":
			return "0", nil
		case "null":
			return "NULL", nil
		}
	}
	return "", declError(v.Pos, "unsupported default value")
}

func convertReference(attr *Attribute) (schema.ForeignKeyInfo, error) {
	var fk schema.ForeignKeyInfo
	positional := 0
	for _, arg := range attr.Arguments {
		if arg.Name == "" {
			if positional > 0 || arg.Value.Ref == nil || len(arg.Value.Ref.Parts) != 2 {
				return fk, declError(arg.Pos, "@references expects table.column")
			}
			fk.TableName, fk.ColumnName = arg.Value.Ref.Parts[0], arg.Value.Ref.Parts[1]
			positional++
			continue
		}
		if err := applyNamed(arg, &fk.UpdateAction, &fk.DeleteAction, &fk.APIType); err != nil {
			return fk, err
		}
	}
	if positional == 0 {
		return fk, declError(attr.Pos, "@references expects table.column")
	}
	return fk, nil
}

// applyNamed handles the onUpdate, onDelete and api arguments shared by
// @references and @@foreign.
func applyNamed(arg *Argument, update, del *schema.ReferentialAction, api *string) error {
	text, err := textValue(arg.Value)
	if err != nil {
		return err
	}
	switch arg.Name {
	case "onUpdate":
		*update = schema.ReferentialAction(strings.ToUpper(text))
		if !update.Valid() {
			return declError(arg.Pos, "unknown referential action %q", text)
		}
	case "onDelete":
		*del = schema.ReferentialAction(strings.ToUpper(text))
		if !del.Valid() {
			return declError(arg.Pos, "unknown referential action %q", text)
		}
	case "api":
		*api = text
	default:
		return declError(arg.Pos, "unknown argument %q", arg.Name)
	}
	return nil
}

func convertBlock(attr *Attribute) (schema.TableOption, error) {
	switch attr.Name {
	case "primary":
		cols, err := singleList(attr)
		if err != nil {
			return nil, err
		}
		return schema.WithPrimaryKey(cols...), nil
	case "index", "unique":
		cols, err := singleList(attr)
		if err != nil {
			return nil, err
		}
		return schema.WithIndices(schema.IndexInfo{Columns: cols, Unique: attr.Name == "unique"}), nil
	case "foreign":
		fk, err := convertForeign(attr)
		if err != nil {
			return nil, err
		}
		return schema.WithForeignKeys(fk), nil
	case "asset":
		if len(attr.Arguments) != 1 || attr.Arguments[0].Value.String == nil {
			return nil, declError(attr.Pos, "@@asset expects a path string")
		}
		return schema.WithStaticDataAsset(*attr.Arguments[0].Value.String), nil
	default:
		return nil, declError(attr.Pos, "unknown block attribute @@%s", attr.Name)
	}
}

func convertForeign(attr *Attribute) (schema.TableForeignKeyInfo, error) {
	fk := schema.TableForeignKeyInfo{LocalToForeignColumns: map[string]string{}}
	var positional []*Value
	for _, arg := range attr.Arguments {
		if arg.Name == "" {
			positional = append(positional, arg.Value)
			continue
		}
		if err := applyNamed(arg, &fk.UpdateAction, &fk.DeleteAction, &fk.ForeignAPIType); err != nil {
			return fk, err
		}
	}
	if len(positional) != 3 || positional[0].Ref == nil {
		return fk, declError(attr.Pos, "@@foreign expects (table, [local columns], [foreign columns])")
	}
	fk.ForeignTableName = positional[0].Ref.String()
	local, err := identList(positional[1])
	if err != nil {
		return fk, err
	}
	foreign, err := identList(positional[2])
	if err != nil {
		return fk, err
	}
	if len(local) == 0 || len(local) != len(foreign) {
		return fk, declError(attr.Pos, "@@foreign column lists must be non-empty and of equal length")
	}
	for i := range local {
		fk.LocalToForeignColumns[local[i]] = foreign[i]
	}
	return fk, nil
}

func singleList(attr *Attribute) ([]string, error) {
	if len(attr.Arguments) != 1 {
		return nil, declError(attr.Pos, "@@%s expects a single column list", attr.Name)
	}
	return identList(attr.Arguments[0].Value)
}

func identList(v *Value) ([]string, error) {
	if v.Array == nil {
		return nil, declError(v.Pos, "expected a column list")
	}
	out := make([]string, 0, len(v.Array))
	for _, item := range v.Array {
		if item.Ref == nil || len(item.Ref.Parts) != 1 {
			return nil, declError(item.Pos, "expected a column name")
		}
		out = append(out, item.Ref.Parts[0])
	}
	return out, nil
}

func textValue(v *Value) (string, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Ref != nil:
		return v.Ref.String(), nil
	}
	return "", declError(v.Pos, "expected a name or string")
}
