package declare

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// declLexer tokenizes the declaration language.
var declLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Block attribute prefix (must come before single @)
	{Name: "BlockAttr", Pattern: `@@`},
	{Name: "FieldAttr", Pattern: `@`},

	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dot", Pattern: `\.`},

	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},

	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "Newline", Pattern: `[\r\n]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// File is the parse tree of a declaration file.
type File struct {
	Pos    lexer.Position
	Tables []*Table `@@*`
}

// Table is a table block.
type Table struct {
	Pos           lexer.Position
	Name          string    `"table" @Ident`
	QualifiedType string    `@String?`
	Members       []*Member `"{" @@* "}"`
}

// Member is a column or a block attribute.
type Member struct {
	Pos    lexer.Position
	Block  *Attribute `  "@@" @@`
	Column *Column    `| @@`
}

// Column is a column declaration with its attributes.
type Column struct {
	Pos        lexer.Position
	Name       string       `@Ident`
	Type       string       `@Ident`
	Attributes []*Attribute `( "@" @@ )*`
}

// Attribute is the name and arguments following @ or @@.
type Attribute struct {
	Pos       lexer.Position
	Name      string      `@Ident`
	Arguments []*Argument `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

// Argument is a positional or named attribute argument.
type Argument struct {
	Pos   lexer.Position
	Name  string `( @Ident ":" )?`
	Value *Value `@@`
}

// Value is an attribute argument value.
type Value struct {
	Pos    lexer.Position
	Array  []*Value `  "[" ( @@ ( "," @@ )* )? "]"`
	String *string  `| @String`
	Number *string  `| @Number`
	Ref    *Ref     `| @@`
}

// Ref is a bare or dotted identifier such as CASCADE or org._id.
type Ref struct {
	Parts []string `@Ident ( "." @Ident )*`
}

// String joins the reference with dots.
func (r *Ref) String() string {
	out := ""
	for i, p := range r.Parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

var parser = participle.MustBuild[File](
	participle.Lexer(declLexer),
	participle.Elide("Whitespace", "Newline", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)
