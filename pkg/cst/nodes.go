// Package cst is a concrete syntax tree for Python test modules.
//
// Nodes are immutable once built: rewrites construct new nodes (sharing
// untouched children) through the With* methods and builder functions. A
// node produced by the parser remembers its original source text, so an
// untouched subtree regenerates byte for byte; any edit through the API
// drops that memory and the node is rendered from its fields instead.
package cst

// Kind tags every node category in the tree.
type Kind int

const (
	KindModule Kind = iota
	KindBlock
	KindClassDef
	KindFunctionDef
	KindParam
	KindDecorator
	KindIf
	KindFor
	KindWhile
	KindWith
	KindWithItem
	KindTry
	KindExprStmt
	KindAssign
	KindAugAssign
	KindReturn
	KindPass
	KindBreak
	KindContinue
	KindAssert
	KindImport
	KindImportFrom
	KindRawStmt

	KindName
	KindAttribute
	KindCall
	KindArg
	KindSubscript
	KindBinaryOp
	KindBoolOp
	KindUnaryOp
	KindComparison
	KindList
	KindTuple
	KindSet
	KindDict
	KindInteger
	KindFloat
	KindString
	KindParen
	KindRawExpr
)

var kindNames = [...]string{
	KindModule:      "Module",
	KindBlock:       "Block",
	KindClassDef:    "ClassDef",
	KindFunctionDef: "FunctionDef",
	KindParam:       "Param",
	KindDecorator:   "Decorator",
	KindIf:          "If",
	KindFor:         "For",
	KindWhile:       "While",
	KindWith:        "With",
	KindWithItem:    "WithItem",
	KindTry:         "Try",
	KindExprStmt:    "ExprStmt",
	KindAssign:      "Assign",
	KindAugAssign:   "AugAssign",
	KindReturn:      "Return",
	KindPass:        "Pass",
	KindBreak:       "Break",
	KindContinue:    "Continue",
	KindAssert:      "Assert",
	KindImport:      "Import",
	KindImportFrom:  "ImportFrom",
	KindRawStmt:     "RawStmt",
	KindName:        "Name",
	KindAttribute:   "Attribute",
	KindCall:        "Call",
	KindArg:         "Arg",
	KindSubscript:   "Subscript",
	KindBinaryOp:    "BinaryOp",
	KindBoolOp:      "BoolOp",
	KindUnaryOp:     "UnaryOp",
	KindComparison:  "Comparison",
	KindList:        "List",
	KindTuple:       "Tuple",
	KindSet:         "Set",
	KindDict:        "Dict",
	KindInteger:     "Integer",
	KindFloat:       "Float",
	KindString:      "String",
	KindParen:       "Paren",
	KindRawExpr:     "RawExpr",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}

// Node is implemented only by the types in this package.
type Node interface {
	Kind() Kind
	sealed()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
	trivia() *Trivia
}

// Line is a full line preceding a statement: a comment, or a blank line
// when Comment is empty.
type Line struct {
	Comment string
}

// Trivia carries the formatting that surrounds a statement.
type Trivia struct {
	Leading []Line
	// Trailing is the end-of-line comment including the whitespace before
	// the '#'. For compound statements it belongs to the header line.
	Trailing string
	// SameLine joins a simple statement to the previous one with "; ".
	SameLine bool

	src    string
	indent string
	tail   string
}

func (t *Trivia) trivia() *Trivia { return t }

// TriviaOf returns a copy of the statement's trivia.
func TriviaOf(s Stmt) Trivia {
	return *s.trivia()
}

// Adopt moves the comments and blank lines of from onto s, which must be
// a freshly built statement.
func Adopt[S Stmt](s S, from Stmt) S {
	t := from.trivia()
	dst := s.trivia()
	dst.Leading = t.Leading
	dst.Trailing = t.Trailing
	dst.SameLine = t.SameLine
	return s
}

// Module is a parsed source file.
type Module struct {
	Body       []Stmt
	Footer     []Line
	IndentUnit string

	src string
}

// Block is the indented body of a compound statement.
type Block struct {
	Stmts  []Stmt
	Footer []Line
}

// Clause is an else/finally body.
type Clause struct {
	Leading  []Line
	Trailing string
	Body     *Block
}

// Elif is one elif branch of an If.
type Elif struct {
	Leading  []Line
	Trailing string
	Test     Expr
	Body     *Block
}

// Handler is an except clause; Header is its text without the colon.
type Handler struct {
	Leading  []Line
	Trailing string
	Header   string
	Body     *Block
}

type ClassDef struct {
	Trivia
	Decorators []*Decorator
	Name       string
	TypeParams string
	Bases      []*Arg
	Parens     bool
	Body       *Block
}

type FunctionDef struct {
	Trivia
	Decorators []*Decorator
	Async      bool
	Name       string
	TypeParams string
	Params     []*Param
	Returns    Expr
	Body       *Block
}

// Param is one entry of a parameter list. Name is empty for the bare
// '*' and '/' separators.
type Param struct {
	Name string
	Code string
}

type Decorator struct {
	Leading []Line
	Value   Expr
}

type If struct {
	Trivia
	Test  Expr
	Body  *Block
	Elifs []*Elif
	Else  *Clause
}

type For struct {
	Trivia
	Async  bool
	Target Expr
	Iter   Expr
	Body   *Block
	Else   *Clause
}

type While struct {
	Trivia
	Test Expr
	Body *Block
	Else *Clause
}

type With struct {
	Trivia
	Async bool
	Items []*WithItem
	Body  *Block
}

type WithItem struct {
	Value Expr
	Alias Expr
}

type Try struct {
	Trivia
	Body     *Block
	Handlers []*Handler
	Else     *Clause
	Finally  *Clause
}

type ExprStmt struct {
	Trivia
	Value Expr
}

type Assign struct {
	Trivia
	Targets []Expr
	Value   Expr
}

type AugAssign struct {
	Trivia
	Target Expr
	Op     string
	Value  Expr
}

type Return struct {
	Trivia
	Value Expr
}

type Pass struct{ Trivia }

type Break struct{ Trivia }

type Continue struct{ Trivia }

type Assert struct {
	Trivia
	Test Expr
	Msg  Expr
}

// ImportAlias is "name" or "name as alias".
type ImportAlias struct {
	Name   string
	AsName string
}

type Import struct {
	Trivia
	Names []ImportAlias
}

type ImportFrom struct {
	Trivia
	Module string
	Names  []ImportAlias
	Star   bool
}

// RawStmt is a statement kept as opaque source text.
type RawStmt struct {
	Trivia
	Code     string
	Compound bool
}

type Name struct {
	Value string
	src   string
}

type Attribute struct {
	Value Expr
	Attr  string
	src   string
}

type Call struct {
	Func Expr
	Args []*Arg
	src  string
}

// Arg is a call argument or a class base. Star is "", "*" or "**".
type Arg struct {
	Keyword string
	Star    string
	Value   Expr
}

type Subscript struct {
	Value Expr
	Index Expr
	src   string
}

type BinaryOp struct {
	Left  Expr
	Op    string
	Right Expr
	src   string
}

type BoolOp struct {
	Left  Expr
	Op    string
	Right Expr
	src   string
}

type UnaryOp struct {
	Op      string
	Operand Expr
	src     string
}

// CompareTarget is one "op right" link of a comparison chain.
type CompareTarget struct {
	Op    string
	Right Expr
}

type Comparison struct {
	Left        Expr
	Comparisons []CompareTarget
	src         string
}

type List struct {
	Elements []Expr
	src      string
}

type Tuple struct {
	Elements []Expr
	Parens   bool
	src      string
}

type Set struct {
	Elements []Expr
	src      string
}

// DictEntry is "key: value", or "**value" when Key is nil.
type DictEntry struct {
	Key   Expr
	Value Expr
}

type Dict struct {
	Entries []DictEntry
	src     string
}

type Integer struct {
	Value string
	src   string
}

type Float struct {
	Value string
	src   string
}

// String is a string literal (or implicit concatenation) including
// prefixes and quotes.
type String struct {
	Value string
	src   string
}

type Paren struct {
	Inner Expr
	src   string
}

// RawExpr is an expression kept as opaque source text.
type RawExpr struct {
	Code string
	prec int
}

func (*Module) Kind() Kind      { return KindModule }
func (*Block) Kind() Kind       { return KindBlock }
func (*ClassDef) Kind() Kind    { return KindClassDef }
func (*FunctionDef) Kind() Kind { return KindFunctionDef }
func (*Param) Kind() Kind       { return KindParam }
func (*Decorator) Kind() Kind   { return KindDecorator }
func (*If) Kind() Kind          { return KindIf }
func (*For) Kind() Kind         { return KindFor }
func (*While) Kind() Kind       { return KindWhile }
func (*With) Kind() Kind        { return KindWith }
func (*WithItem) Kind() Kind    { return KindWithItem }
func (*Try) Kind() Kind         { return KindTry }
func (*ExprStmt) Kind() Kind    { return KindExprStmt }
func (*Assign) Kind() Kind      { return KindAssign }
func (*AugAssign) Kind() Kind   { return KindAugAssign }
func (*Return) Kind() Kind      { return KindReturn }
func (*Pass) Kind() Kind        { return KindPass }
func (*Break) Kind() Kind       { return KindBreak }
func (*Continue) Kind() Kind    { return KindContinue }
func (*Assert) Kind() Kind      { return KindAssert }
func (*Import) Kind() Kind      { return KindImport }
func (*ImportFrom) Kind() Kind  { return KindImportFrom }
func (*RawStmt) Kind() Kind     { return KindRawStmt }
func (*Name) Kind() Kind        { return KindName }
func (*Attribute) Kind() Kind   { return KindAttribute }
func (*Call) Kind() Kind        { return KindCall }
func (*Arg) Kind() Kind         { return KindArg }
func (*Subscript) Kind() Kind   { return KindSubscript }
func (*BinaryOp) Kind() Kind    { return KindBinaryOp }
func (*BoolOp) Kind() Kind      { return KindBoolOp }
func (*UnaryOp) Kind() Kind     { return KindUnaryOp }
func (*Comparison) Kind() Kind  { return KindComparison }
func (*List) Kind() Kind        { return KindList }
func (*Tuple) Kind() Kind       { return KindTuple }
func (*Set) Kind() Kind         { return KindSet }
func (*Dict) Kind() Kind        { return KindDict }
func (*Integer) Kind() Kind     { return KindInteger }
func (*Float) Kind() Kind       { return KindFloat }
func (*String) Kind() Kind      { return KindString }
func (*Paren) Kind() Kind       { return KindParen }
func (*RawExpr) Kind() Kind     { return KindRawExpr }

func (*Module) sealed()      {}
func (*Block) sealed()       {}
func (*ClassDef) sealed()    {}
func (*FunctionDef) sealed() {}
func (*Param) sealed()       {}
func (*Decorator) sealed()   {}
func (*If) sealed()          {}
func (*For) sealed()         {}
func (*While) sealed()       {}
func (*With) sealed()        {}
func (*WithItem) sealed()    {}
func (*Try) sealed()         {}
func (*ExprStmt) sealed()    {}
func (*Assign) sealed()      {}
func (*AugAssign) sealed()   {}
func (*Return) sealed()      {}
func (*Pass) sealed()        {}
func (*Break) sealed()       {}
func (*Continue) sealed()    {}
func (*Assert) sealed()      {}
func (*Import) sealed()      {}
func (*ImportFrom) sealed()  {}
func (*RawStmt) sealed()     {}
func (*Name) sealed()        {}
func (*Attribute) sealed()   {}
func (*Call) sealed()        {}
func (*Arg) sealed()         {}
func (*Subscript) sealed()   {}
func (*BinaryOp) sealed()    {}
func (*BoolOp) sealed()      {}
func (*UnaryOp) sealed()     {}
func (*Comparison) sealed()  {}
func (*List) sealed()        {}
func (*Tuple) sealed()       {}
func (*Set) sealed()         {}
func (*Dict) sealed()        {}
func (*Integer) sealed()     {}
func (*Float) sealed()       {}
func (*String) sealed()      {}
func (*Paren) sealed()       {}
func (*RawExpr) sealed()     {}

func (*ClassDef) stmtNode()    {}
func (*FunctionDef) stmtNode() {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*With) stmtNode()        {}
func (*Try) stmtNode()         {}
func (*ExprStmt) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*Return) stmtNode()      {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Assert) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*RawStmt) stmtNode()     {}

func (*Name) exprNode()       {}
func (*Attribute) exprNode()  {}
func (*Call) exprNode()       {}
func (*Subscript) exprNode()  {}
func (*BinaryOp) exprNode()   {}
func (*BoolOp) exprNode()     {}
func (*UnaryOp) exprNode()    {}
func (*Comparison) exprNode() {}
func (*List) exprNode()       {}
func (*Tuple) exprNode()      {}
func (*Set) exprNode()        {}
func (*Dict) exprNode()       {}
func (*Integer) exprNode()    {}
func (*Float) exprNode()      {}
func (*String) exprNode()     {}
func (*Paren) exprNode()      {}
func (*RawExpr) exprNode()    {}

// IsCompound reports whether s owns an indented body.
func IsCompound(s Stmt) bool {
	switch n := s.(type) {
	case *ClassDef, *FunctionDef, *If, *For, *While, *With, *Try:
		return true
	case *RawStmt:
		return n.Compound
	}
	return false
}
