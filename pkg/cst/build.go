package cst

import "strconv"

// Precedence orders expression binding strength, loosest first.
type Precedence int

const (
	PrecUnknown Precedence = iota
	PrecLambda
	PrecTernary
	PrecOr
	PrecAnd
	PrecNot
	PrecCompare
	PrecBitOr
	PrecBitXor
	PrecBitAnd
	PrecShift
	PrecArith
	PrecTerm
	PrecUnary
	PrecPower
	PrecAwait
	PrecAtom
)

var binaryPrec = map[string]Precedence{
	"|":  PrecBitOr,
	"^":  PrecBitXor,
	"&":  PrecBitAnd,
	"<<": PrecShift,
	">>": PrecShift,
	"+":  PrecArith,
	"-":  PrecArith,
	"*":  PrecTerm,
	"/":  PrecTerm,
	"//": PrecTerm,
	"%":  PrecTerm,
	"@":  PrecTerm,
	"**": PrecPower,
}

// PrecedenceOf reports how tightly e binds. Raw code of unknown shape
// reports PrecUnknown so callers parenthesize it.
func PrecedenceOf(e Expr) Precedence {
	switch n := e.(type) {
	case *Name, *Attribute, *Call, *Subscript, *List, *Set, *Dict,
		*Integer, *Float, *String, *Paren:
		return PrecAtom
	case *Tuple:
		if n.Parens || len(n.Elements) == 0 {
			return PrecAtom
		}
		return PrecUnknown
	case *BinaryOp:
		if p, ok := binaryPrec[n.Op]; ok {
			return p
		}
		return PrecUnknown
	case *BoolOp:
		if n.Op == "and" {
			return PrecAnd
		}
		return PrecOr
	case *UnaryOp:
		if n.Op == "not" {
			return PrecNot
		}
		return PrecUnary
	case *Comparison:
		return PrecCompare
	case *RawExpr:
		return Precedence(n.prec)
	}
	return PrecUnknown
}

// Parenthesize wraps e when it binds looser than min.
func Parenthesize(e Expr, min Precedence) Expr {
	if PrecedenceOf(e) < min {
		return &Paren{Inner: e}
	}
	return e
}

// Unparen strips any number of redundant parentheses.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*Paren)
		if !ok {
			return e
		}
		e = p.Inner
	}
}

func NewName(v string) *Name { return &Name{Value: v} }

// NewDotted builds a.b.c from its parts.
func NewDotted(parts ...string) Expr {
	var e Expr = NewName(parts[0])
	for _, p := range parts[1:] {
		e = &Attribute{Value: e, Attr: p}
	}
	return e
}

func NewAttribute(value Expr, attr string) *Attribute {
	return &Attribute{Value: Parenthesize(value, PrecAtom), Attr: attr}
}

func NewCall(fn Expr, args ...*Arg) *Call {
	return &Call{Func: Parenthesize(fn, PrecAtom), Args: args}
}

func PosArg(v Expr) *Arg {
	return &Arg{Value: Parenthesize(v, PrecLambda)}
}

func KwArg(keyword string, v Expr) *Arg {
	return &Arg{Keyword: keyword, Value: Parenthesize(v, PrecLambda)}
}

// Quote builds a double-quoted string literal. s must not need escaping
// beyond what strconv.Quote produces for ASCII text.
func Quote(s string) *String {
	return &String{Value: strconv.Quote(s)}
}

func NewString(literal string) *String { return &String{Value: literal} }

func NewInteger(v int64) *Integer {
	return &Integer{Value: strconv.FormatInt(v, 10)}
}

func NewList(elts ...Expr) *List { return &List{Elements: elts} }

func NewTuple(elts ...Expr) *Tuple { return &Tuple{Elements: elts, Parens: true} }

// NewRawExpr wraps opaque expression code with a known binding strength.
func NewRawExpr(code string, prec Precedence) *RawExpr {
	return &RawExpr{Code: code, prec: int(prec)}
}

// Compare builds "left op right", parenthesizing operands that would
// otherwise chain or bind looser than the comparison.
func Compare(left Expr, op string, right Expr) *Comparison {
	return &Comparison{
		Left:        Parenthesize(left, PrecBitOr),
		Comparisons: []CompareTarget{{Op: op, Right: Parenthesize(right, PrecBitOr)}},
	}
}

func Not(x Expr) *UnaryOp {
	return &UnaryOp{Op: "not", Operand: Parenthesize(x, PrecNot)}
}

// BinOp builds a binary arithmetic or bitwise expression.
func BinOp(left Expr, op string, right Expr) *BinaryOp {
	p := binaryPrec[op]
	leftMin, rightMin := p, p+1
	if op == "**" {
		leftMin, rightMin = PrecAwait, PrecUnary
	}
	return &BinaryOp{Left: Parenthesize(left, leftMin), Op: op, Right: Parenthesize(right, rightMin)}
}

func NewBlock(stmts ...Stmt) *Block { return &Block{Stmts: stmts} }

func NewExprStmt(e Expr) *ExprStmt {
	return &ExprStmt{Value: Parenthesize(e, PrecLambda)}
}

func NewAssert(test, msg Expr) *Assert {
	a := &Assert{Test: Parenthesize(test, PrecLambda)}
	if msg != nil {
		a.Msg = Parenthesize(msg, PrecLambda)
	}
	return a
}

func NewPass() *Pass { return &Pass{} }

// NewYield builds the bare "yield" statement that splits a fixture into
// its setup and teardown halves.
func NewYield() *ExprStmt {
	return &ExprStmt{Value: NewRawExpr("yield", PrecUnknown)}
}

func NewImport(names ...string) *Import {
	im := &Import{}
	for _, n := range names {
		im.Names = append(im.Names, ImportAlias{Name: n})
	}
	return im
}

func NewParam(name string) *Param { return &Param{Name: name, Code: name} }

func NewDecorator(e Expr) *Decorator { return &Decorator{Value: e} }

func NewFunctionDef(name string, params []*Param, body *Block, decorators ...*Decorator) *FunctionDef {
	return &FunctionDef{Name: name, Params: params, Body: body, Decorators: decorators}
}

func NewWith(items []*WithItem, body *Block) *With {
	return &With{Items: items, Body: body}
}

func NewWithItem(value, alias Expr) *WithItem {
	return &WithItem{Value: Parenthesize(value, PrecLambda), Alias: alias}
}

// SetSource records the original text of an expression. It is meant for
// parsers building fresh nodes.
func SetSource(e Expr, src string) {
	switch n := e.(type) {
	case *Name:
		n.src = src
	case *Attribute:
		n.src = src
	case *Call:
		n.src = src
	case *Subscript:
		n.src = src
	case *BinaryOp:
		n.src = src
	case *BoolOp:
		n.src = src
	case *UnaryOp:
		n.src = src
	case *Comparison:
		n.src = src
	case *List:
		n.src = src
	case *Tuple:
		n.src = src
	case *Set:
		n.src = src
	case *Dict:
		n.src = src
	case *Integer:
		n.src = src
	case *Float:
		n.src = src
	case *String:
		n.src = src
	case *Paren:
		n.src = src
	case *RawExpr:
		n.Code = src
	}
}

// SetOrigin records the original text and indentation of a parsed
// statement.
func SetOrigin(s Stmt, src, indent string) {
	t := s.trivia()
	t.src = src
	t.indent = indent
}

// AppendTail records a comment that followed the last line of a compound
// statement in the original text.
func AppendTail(s Stmt, comment string) {
	s.trivia().tail += comment
}

// MutableTrivia returns the trivia of a statement a parser is still
// assembling.
func MutableTrivia(s Stmt) *Trivia { return s.trivia() }

// SetModuleSource records the full original text of a parsed module.
func SetModuleSource(m *Module, src string) { m.src = src }

// Edited reports whether the module will be regenerated from its nodes
// rather than echoed verbatim.
func (m *Module) Edited() bool { return m.src == "" }

func (m *Module) WithBody(body []Stmt) *Module {
	c := *m
	c.Body = body
	c.src = ""
	return &c
}

func (b *Block) WithStmts(stmts []Stmt) *Block {
	c := *b
	c.Stmts = stmts
	return &c
}

func (f *FunctionDef) WithBody(b *Block) *FunctionDef {
	c := *f
	c.Body = b
	c.src = ""
	return &c
}

func (f *FunctionDef) WithDecorators(d []*Decorator) *FunctionDef {
	c := *f
	c.Decorators = d
	c.src = ""
	return &c
}

func (f *FunctionDef) WithParams(p []*Param) *FunctionDef {
	c := *f
	c.Params = p
	c.src = ""
	return &c
}

func (f *FunctionDef) WithName(name string) *FunctionDef {
	c := *f
	c.Name = name
	c.src = ""
	return &c
}

// ParamNames lists the named parameters, without '*' or '**' markers.
func (f *FunctionDef) ParamNames() []string {
	names := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

func (c *ClassDef) WithBody(b *Block) *ClassDef {
	n := *c
	n.Body = b
	n.src = ""
	return &n
}

func (c *ClassDef) WithBases(bases []*Arg) *ClassDef {
	n := *c
	n.Bases = bases
	n.Parens = len(bases) > 0
	n.src = ""
	return &n
}

func (c *ClassDef) WithDecorators(d []*Decorator) *ClassDef {
	n := *c
	n.Decorators = d
	n.src = ""
	return &n
}

func (w *With) WithItems(items []*WithItem) *With {
	c := *w
	c.Items = items
	c.src = ""
	return &c
}

func (w *With) WithBody(b *Block) *With {
	c := *w
	c.Body = b
	c.src = ""
	return &c
}

func (c *Call) WithFunc(fn Expr) *Call {
	n := *c
	n.Func = Parenthesize(fn, PrecAtom)
	n.src = ""
	return &n
}

func (c *Call) WithArgs(args []*Arg) *Call {
	n := *c
	n.Args = args
	n.src = ""
	return &n
}

// MapBlocks returns s with fn applied to every block it directly owns.
// When fn returns each block unchanged, s itself is returned.
func MapBlocks(s Stmt, fn func(*Block) *Block) Stmt {
	switch n := s.(type) {
	case *FunctionDef:
		if b := fn(n.Body); b != n.Body {
			return n.WithBody(b)
		}
	case *ClassDef:
		if b := fn(n.Body); b != n.Body {
			return n.WithBody(b)
		}
	case *With:
		if b := fn(n.Body); b != n.Body {
			return n.WithBody(b)
		}
	case *If:
		c := *n
		changed := false
		if b := fn(n.Body); b != n.Body {
			c.Body, changed = b, true
		}
		elifs := make([]*Elif, len(n.Elifs))
		for i, e := range n.Elifs {
			elifs[i] = e
			if b := fn(e.Body); b != e.Body {
				ec := *e
				ec.Body = b
				elifs[i], changed = &ec, true
			}
		}
		c.Elifs = elifs
		if cl, ok := mapClause(n.Else, fn); ok {
			c.Else, changed = cl, true
		}
		if changed {
			c.src = ""
			return &c
		}
	case *For:
		c := *n
		changed := false
		if b := fn(n.Body); b != n.Body {
			c.Body, changed = b, true
		}
		if cl, ok := mapClause(n.Else, fn); ok {
			c.Else, changed = cl, true
		}
		if changed {
			c.src = ""
			return &c
		}
	case *While:
		c := *n
		changed := false
		if b := fn(n.Body); b != n.Body {
			c.Body, changed = b, true
		}
		if cl, ok := mapClause(n.Else, fn); ok {
			c.Else, changed = cl, true
		}
		if changed {
			c.src = ""
			return &c
		}
	case *Try:
		c := *n
		changed := false
		if b := fn(n.Body); b != n.Body {
			c.Body, changed = b, true
		}
		handlers := make([]*Handler, len(n.Handlers))
		for i, h := range n.Handlers {
			handlers[i] = h
			if b := fn(h.Body); b != h.Body {
				hc := *h
				hc.Body = b
				handlers[i], changed = &hc, true
			}
		}
		c.Handlers = handlers
		if cl, ok := mapClause(n.Else, fn); ok {
			c.Else, changed = cl, true
		}
		if cl, ok := mapClause(n.Finally, fn); ok {
			c.Finally, changed = cl, true
		}
		if changed {
			c.src = ""
			return &c
		}
	}
	return s
}

func mapClause(cl *Clause, fn func(*Block) *Block) (*Clause, bool) {
	if cl == nil {
		return nil, false
	}
	b := fn(cl.Body)
	if b == cl.Body {
		return cl, false
	}
	c := *cl
	c.Body = b
	return &c, true
}

// DottedName renders a Name/Attribute chain as "a.b.c". It reports false
// for any other shape.
func DottedName(e Expr) (string, bool) {
	switch n := e.(type) {
	case *Name:
		return n.Value, true
	case *Attribute:
		base, ok := DottedName(n.Value)
		if !ok {
			return "", false
		}
		return base + "." + n.Attr, true
	}
	return "", false
}

// IsDotted reports whether e is exactly the given dotted name.
func IsDotted(e Expr, dotted string) bool {
	name, ok := DottedName(e)
	return ok && name == dotted
}

// WithLeading returns a shallow copy of s whose leading lines are
// replaced. The copy keeps its original source text.
func WithLeading(s Stmt, leading []Line) Stmt {
	var c Stmt
	switch n := s.(type) {
	case *ClassDef:
		v := *n
		c = &v
	case *FunctionDef:
		v := *n
		c = &v
	case *If:
		v := *n
		c = &v
	case *For:
		v := *n
		c = &v
	case *While:
		v := *n
		c = &v
	case *With:
		v := *n
		c = &v
	case *Try:
		v := *n
		c = &v
	case *ExprStmt:
		v := *n
		c = &v
	case *Assign:
		v := *n
		c = &v
	case *AugAssign:
		v := *n
		c = &v
	case *Return:
		v := *n
		c = &v
	case *Pass:
		v := *n
		c = &v
	case *Break:
		v := *n
		c = &v
	case *Continue:
		v := *n
		c = &v
	case *Assert:
		v := *n
		c = &v
	case *Import:
		v := *n
		c = &v
	case *ImportFrom:
		v := *n
		c = &v
	case *RawStmt:
		v := *n
		c = &v
	default:
		return s
	}
	t := c.trivia()
	t.Leading = leading
	t.SameLine = false
	return c
}

// PrependLeading moves lines in front of the existing leading lines of s.
func PrependLeading(s Stmt, lines []Line) Stmt {
	if len(lines) == 0 {
		return s
	}
	merged := make([]Line, 0, len(lines)+len(s.trivia().Leading))
	merged = append(merged, lines...)
	merged = append(merged, s.trivia().Leading...)
	return WithLeading(s, merged)
}
