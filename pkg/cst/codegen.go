package cst

import "strings"

const defaultIndent = "    "

// Generate renders a module back to source text. An untouched module is
// returned exactly as parsed.
func Generate(m *Module) string {
	if m.src != "" {
		return m.src
	}
	g := &generator{unit: m.IndentUnit}
	if g.unit == "" {
		g.unit = defaultIndent
	}
	g.stmts(m.Body, "")
	g.lines(m.Footer, "")
	return g.b.String()
}

// GenerateStmt renders a single statement at the given indentation.
func GenerateStmt(s Stmt, indent string) string {
	g := &generator{unit: defaultIndent}
	g.stmts([]Stmt{s}, indent)
	return g.b.String()
}

// Code renders an expression.
func Code(e Expr) string {
	if e == nil {
		return ""
	}
	switch n := e.(type) {
	case *Name:
		if n.src != "" {
			return n.src
		}
		return n.Value
	case *Attribute:
		if n.src != "" {
			return n.src
		}
		return Code(n.Value) + "." + n.Attr
	case *Call:
		if n.src != "" {
			return n.src
		}
		return Code(n.Func) + "(" + argList(n.Args) + ")"
	case *Subscript:
		if n.src != "" {
			return n.src
		}
		return Code(n.Value) + "[" + Code(n.Index) + "]"
	case *BinaryOp:
		if n.src != "" {
			return n.src
		}
		return Code(n.Left) + " " + n.Op + " " + Code(n.Right)
	case *BoolOp:
		if n.src != "" {
			return n.src
		}
		return Code(n.Left) + " " + n.Op + " " + Code(n.Right)
	case *UnaryOp:
		if n.src != "" {
			return n.src
		}
		if n.Op == "not" {
			return "not " + Code(n.Operand)
		}
		return n.Op + Code(n.Operand)
	case *Comparison:
		if n.src != "" {
			return n.src
		}
		var b strings.Builder
		b.WriteString(Code(n.Left))
		for _, c := range n.Comparisons {
			b.WriteString(" " + c.Op + " " + Code(c.Right))
		}
		return b.String()
	case *List:
		if n.src != "" {
			return n.src
		}
		return "[" + exprList(n.Elements) + "]"
	case *Tuple:
		if n.src != "" {
			return n.src
		}
		inner := exprList(n.Elements)
		if len(n.Elements) == 1 {
			inner += ","
		}
		if n.Parens || len(n.Elements) == 0 {
			return "(" + inner + ")"
		}
		return inner
	case *Set:
		if n.src != "" {
			return n.src
		}
		return "{" + exprList(n.Elements) + "}"
	case *Dict:
		if n.src != "" {
			return n.src
		}
		parts := make([]string, len(n.Entries))
		for i, en := range n.Entries {
			if en.Key == nil {
				parts[i] = "**" + Code(en.Value)
			} else {
				parts[i] = Code(en.Key) + ": " + Code(en.Value)
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Integer:
		if n.src != "" {
			return n.src
		}
		return n.Value
	case *Float:
		if n.src != "" {
			return n.src
		}
		return n.Value
	case *String:
		if n.src != "" {
			return n.src
		}
		return n.Value
	case *Paren:
		if n.src != "" {
			return n.src
		}
		return "(" + Code(n.Inner) + ")"
	case *RawExpr:
		return n.Code
	}
	return ""
}

// ArgCode renders one call argument.
func ArgCode(a *Arg) string {
	var b strings.Builder
	b.WriteString(a.Star)
	if a.Keyword != "" {
		b.WriteString(a.Keyword + "=")
	}
	b.WriteString(Code(a.Value))
	return b.String()
}

func argList(args []*Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ArgCode(a)
	}
	return strings.Join(parts, ", ")
}

func exprList(elts []Expr) string {
	parts := make([]string, len(elts))
	for i, e := range elts {
		parts[i] = Code(e)
	}
	return strings.Join(parts, ", ")
}

type generator struct {
	b    strings.Builder
	unit string
}

func (g *generator) lines(ls []Line, indent string) {
	for _, l := range ls {
		if l.Comment == "" {
			g.b.WriteString("\n")
			continue
		}
		g.b.WriteString(indent + l.Comment + "\n")
	}
}

func joinable(prev, next Stmt) bool {
	nt := next.trivia()
	return nt.SameLine && !IsCompound(next) && len(nt.Leading) == 0 && prev.trivia().Trailing == ""
}

func (g *generator) stmts(stmts []Stmt, indent string) {
	for i := 0; i < len(stmts); i++ {
		s := stmts[i]
		g.lines(s.trivia().Leading, indent)
		if IsCompound(s) {
			g.compound(s, indent)
			continue
		}
		g.b.WriteString(indent + simpleCode(s))
		for i+1 < len(stmts) && joinable(s, stmts[i+1]) {
			i++
			s = stmts[i]
			g.b.WriteString("; " + simpleCode(s))
		}
		g.b.WriteString(s.trivia().Trailing + "\n")
	}
}

func (g *generator) body(b *Block, indent string) {
	if b == nil || len(b.Stmts) == 0 {
		g.b.WriteString(indent + "pass\n")
		if b != nil {
			g.lines(b.Footer, indent)
		}
		return
	}
	g.stmts(b.Stmts, indent)
	g.lines(b.Footer, indent)
}

func (g *generator) clause(keyword string, c *Clause, indent string) {
	if c == nil {
		return
	}
	g.lines(c.Leading, indent)
	g.b.WriteString(indent + keyword + ":" + c.Trailing + "\n")
	g.body(c.Body, indent+g.unit)
}

func (g *generator) decorators(ds []*Decorator, indent string) {
	for _, d := range ds {
		g.lines(d.Leading, indent)
		g.b.WriteString(indent + "@" + Code(d.Value) + "\n")
	}
}

func (g *generator) compound(s Stmt, indent string) {
	t := s.trivia()
	if t.src != "" && t.indent == indent {
		g.b.WriteString(indent + t.src + t.tail + "\n")
		return
	}
	inner := indent + g.unit
	switch n := s.(type) {
	case *FunctionDef:
		g.decorators(n.Decorators, indent)
		g.b.WriteString(indent)
		if n.Async {
			g.b.WriteString("async ")
		}
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.Code
		}
		g.b.WriteString("def " + n.Name + n.TypeParams + "(" + strings.Join(params, ", ") + ")")
		if n.Returns != nil {
			g.b.WriteString(" -> " + Code(n.Returns))
		}
		g.b.WriteString(":" + t.Trailing + "\n")
		g.body(n.Body, inner)
	case *ClassDef:
		g.decorators(n.Decorators, indent)
		g.b.WriteString(indent + "class " + n.Name + n.TypeParams)
		if n.Parens || len(n.Bases) > 0 {
			g.b.WriteString("(" + argList(n.Bases) + ")")
		}
		g.b.WriteString(":" + t.Trailing + "\n")
		g.body(n.Body, inner)
	case *If:
		g.b.WriteString(indent + "if " + Code(n.Test) + ":" + t.Trailing + "\n")
		g.body(n.Body, inner)
		for _, e := range n.Elifs {
			g.lines(e.Leading, indent)
			g.b.WriteString(indent + "elif " + Code(e.Test) + ":" + e.Trailing + "\n")
			g.body(e.Body, inner)
		}
		g.clause("else", n.Else, indent)
	case *For:
		g.b.WriteString(indent)
		if n.Async {
			g.b.WriteString("async ")
		}
		g.b.WriteString("for " + Code(n.Target) + " in " + Code(n.Iter) + ":" + t.Trailing + "\n")
		g.body(n.Body, inner)
		g.clause("else", n.Else, indent)
	case *While:
		g.b.WriteString(indent + "while " + Code(n.Test) + ":" + t.Trailing + "\n")
		g.body(n.Body, inner)
		g.clause("else", n.Else, indent)
	case *With:
		g.b.WriteString(indent)
		if n.Async {
			g.b.WriteString("async ")
		}
		items := make([]string, len(n.Items))
		for i, it := range n.Items {
			items[i] = Code(it.Value)
			if it.Alias != nil {
				items[i] += " as " + Code(it.Alias)
			}
		}
		g.b.WriteString("with " + strings.Join(items, ", ") + ":" + t.Trailing + "\n")
		g.body(n.Body, inner)
	case *Try:
		g.b.WriteString(indent + "try:" + t.Trailing + "\n")
		g.body(n.Body, inner)
		for _, h := range n.Handlers {
			g.lines(h.Leading, indent)
			g.b.WriteString(indent + h.Header + ":" + h.Trailing + "\n")
			g.body(h.Body, inner)
		}
		g.clause("else", n.Else, indent)
		g.clause("finally", n.Finally, indent)
	case *RawStmt:
		g.b.WriteString(indent + reindent(n.Code, t.indent, indent) + t.tail + "\n")
	}
}

// reindent moves continuation lines of code from one indentation to
// another. Lines that do not start with the old indentation are kept.
func reindent(code, from, to string) string {
	if from == to {
		return code
	}
	lines := strings.Split(code, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		if strings.HasPrefix(lines[i], from) {
			lines[i] = to + lines[i][len(from):]
		}
	}
	return strings.Join(lines, "\n")
}

func simpleCode(s Stmt) string {
	if src := s.trivia().src; src != "" {
		return src
	}
	switch n := s.(type) {
	case *ExprStmt:
		return Code(n.Value)
	case *Assign:
		parts := make([]string, 0, len(n.Targets)+1)
		for _, t := range n.Targets {
			parts = append(parts, Code(t))
		}
		parts = append(parts, Code(n.Value))
		return strings.Join(parts, " = ")
	case *AugAssign:
		return Code(n.Target) + " " + n.Op + " " + Code(n.Value)
	case *Return:
		if n.Value == nil {
			return "return"
		}
		return "return " + Code(n.Value)
	case *Pass:
		return "pass"
	case *Break:
		return "break"
	case *Continue:
		return "continue"
	case *Assert:
		if n.Msg == nil {
			return "assert " + Code(n.Test)
		}
		return "assert " + Code(n.Test) + ", " + Code(n.Msg)
	case *Import:
		return "import " + aliasList(n.Names)
	case *ImportFrom:
		if n.Star {
			return "from " + n.Module + " import *"
		}
		return "from " + n.Module + " import " + aliasList(n.Names)
	case *RawStmt:
		return n.Code
	}
	return "pass"
}

func aliasList(names []ImportAlias) string {
	parts := make([]string, len(names))
	for i, a := range names {
		parts[i] = a.Name
		if a.AsName != "" {
			parts[i] += " as " + a.AsName
		}
	}
	return strings.Join(parts, ", ")
}
