// Package declare loads a target schema from a declaration file. Three formats
// are accepted: the table declaration language (.schema), JSON shaped like a
// stored target_schema (.json) and YAML (.yaml, .yml).
package declare

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// ErrInvalidDeclaration is returned for declarations that parse but do not describe a schema.
var ErrInvalidDeclaration = errors.New("invalid declaration")

// Load reads the declaration at path, choosing the format from its extension.
func Load(fs afero.Fs, path string) (schema.Tables, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(bytes.NewReader(data))
	case ".yaml", ".yml":
		return ParseYAML(bytes.NewReader(data))
	default:
		return Parse(path, bytes.NewReader(data))
	}
}

// Parse reads the table declaration language.
func Parse(filename string, r io.Reader) (schema.Tables, error) {
	file, err := parser.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse declaration: %w", err)
	}
	return convertFile(file)
}

// ParseString is Parse over an in-memory source.
func ParseString(filename, source string) (schema.Tables, error) {
	return Parse(filename, strings.NewReader(source))
}

// ParseJSON reads a table-name to table object. Built-in columns present in
// the input are ignored, so a stored target_schema can be used verbatim.
func ParseJSON(r io.Reader) (schema.Tables, error) {
	var raw map[string]schema.TableInfo
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON declaration: %w", err)
	}
	tables := schema.Tables{}
	for _, key := range sortedTableKeys(raw) {
		t := raw[key]
		if t.Name == "" {
			t.Name = key
		}
		var cols []schema.ColumnInfo
		for name, c := range t.Columns {
			if schema.IsDefaultColumn(name) {
				continue
			}
			if c.Name == "" {
				c.Name = name
			}
			cols = append(cols, c)
		}
		table, err := schema.NewTableInfo(t.Name, t.QualifiedType, sortColumns(cols),
			schema.WithPrimaryKey(t.PrimaryKey...),
			schema.WithForeignKeys(t.ForeignKeys...),
			schema.WithIndices(t.Indices...),
			schema.WithStaticDataAsset(t.StaticDataAsset))
		if err != nil {
			return nil, err
		}
		tables[table.Name] = table
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

// yamlDocument is the YAML declaration layout.
type yamlDocument struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name        string                       `yaml:"name"`
	Type        string                       `yaml:"type"`
	Columns     []schema.ColumnInfo          `yaml:"columns"`
	PrimaryKey  []string                     `yaml:"primary_key"`
	ForeignKeys []schema.TableForeignKeyInfo `yaml:"foreign_keys"`
	Indices     []schema.IndexInfo           `yaml:"indices"`
	Asset       string                       `yaml:"asset"`
}

// ParseYAML reads a YAML declaration:
//
//	tables:
//	  - name: user
//	    type: com.example.User
//	    columns:
//	      - {name: email, type: string, unique: true}
func ParseYAML(r io.Reader) (schema.Tables, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML declaration: %w", err)
	}
	tables := schema.Tables{}
	for _, t := range doc.Tables {
		if _, dup := tables[t.Name]; dup {
			return nil, fmt.Errorf("%w: table %q declared twice", ErrInvalidDeclaration, t.Name)
		}
		qualified := t.Type
		if qualified == "" {
			qualified = t.Name
		}
		table, err := schema.NewTableInfo(t.Name, qualified, t.Columns,
			schema.WithPrimaryKey(t.PrimaryKey...),
			schema.WithForeignKeys(t.ForeignKeys...),
			schema.WithIndices(t.Indices...),
			schema.WithStaticDataAsset(t.Asset))
		if err != nil {
			return nil, err
		}
		tables[table.Name] = table
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

func sortedTableKeys(m map[string]schema.TableInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortColumns(cols []schema.ColumnInfo) []schema.ColumnInfo {
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols
}
