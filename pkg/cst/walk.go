package cst

import (
	"fmt"
	"regexp"
	"strings"
)

// Children lists the direct child nodes of n in source order.
func Children(n Node) []Node {
	var out []Node
	addExpr := func(e Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	addBlock := func(b *Block) {
		if b != nil {
			out = append(out, b)
		}
	}
	addClause := func(c *Clause) {
		if c != nil {
			addBlock(c.Body)
		}
	}
	switch v := n.(type) {
	case *Module:
		for _, s := range v.Body {
			out = append(out, s)
		}
	case *Block:
		for _, s := range v.Stmts {
			out = append(out, s)
		}
	case *ClassDef:
		for _, d := range v.Decorators {
			out = append(out, d)
		}
		for _, a := range v.Bases {
			out = append(out, a)
		}
		addBlock(v.Body)
	case *FunctionDef:
		for _, d := range v.Decorators {
			out = append(out, d)
		}
		for _, p := range v.Params {
			out = append(out, p)
		}
		addExpr(v.Returns)
		addBlock(v.Body)
	case *Decorator:
		addExpr(v.Value)
	case *If:
		addExpr(v.Test)
		addBlock(v.Body)
		for _, e := range v.Elifs {
			addExpr(e.Test)
			addBlock(e.Body)
		}
		addClause(v.Else)
	case *For:
		addExpr(v.Target)
		addExpr(v.Iter)
		addBlock(v.Body)
		addClause(v.Else)
	case *While:
		addExpr(v.Test)
		addBlock(v.Body)
		addClause(v.Else)
	case *With:
		for _, it := range v.Items {
			out = append(out, it)
		}
		addBlock(v.Body)
	case *WithItem:
		addExpr(v.Value)
		addExpr(v.Alias)
	case *Try:
		addBlock(v.Body)
		for _, h := range v.Handlers {
			addBlock(h.Body)
		}
		addClause(v.Else)
		addClause(v.Finally)
	case *ExprStmt:
		addExpr(v.Value)
	case *Assign:
		for _, t := range v.Targets {
			addExpr(t)
		}
		addExpr(v.Value)
	case *AugAssign:
		addExpr(v.Target)
		addExpr(v.Value)
	case *Return:
		addExpr(v.Value)
	case *Assert:
		addExpr(v.Test)
		addExpr(v.Msg)
	case *Attribute:
		addExpr(v.Value)
	case *Call:
		addExpr(v.Func)
		for _, a := range v.Args {
			out = append(out, a)
		}
	case *Arg:
		addExpr(v.Value)
	case *Subscript:
		addExpr(v.Value)
		addExpr(v.Index)
	case *BinaryOp:
		addExpr(v.Left)
		addExpr(v.Right)
	case *BoolOp:
		addExpr(v.Left)
		addExpr(v.Right)
	case *UnaryOp:
		addExpr(v.Operand)
	case *Comparison:
		addExpr(v.Left)
		for _, c := range v.Comparisons {
			addExpr(c.Right)
		}
	case *List:
		for _, e := range v.Elements {
			addExpr(e)
		}
	case *Tuple:
		for _, e := range v.Elements {
			addExpr(e)
		}
	case *Set:
		for _, e := range v.Elements {
			addExpr(e)
		}
	case *Dict:
		for _, en := range v.Entries {
			addExpr(en.Key)
			addExpr(en.Value)
		}
	case *Paren:
		addExpr(v.Inner)
	case *Param, *Pass, *Break, *Continue, *Import, *ImportFrom, *RawStmt,
		*Name, *Integer, *Float, *String, *RawExpr:
	}
	return out
}

// Inspect walks the tree depth-first. Returning false from fn skips the
// node's children.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, fn)
	}
}

// opaqueText returns the uninterpreted source a node carries, if any.
func opaqueText(n Node) string {
	switch v := n.(type) {
	case *RawExpr:
		return v.Code
	case *RawStmt:
		return v.Code
	case *Param:
		return v.Code
	case *ClassDef:
		return v.TypeParams
	case *FunctionDef:
		return v.TypeParams
	case *Try:
		hs := make([]string, len(v.Handlers))
		for i, h := range v.Handlers {
			hs[i] = h.Header
		}
		return strings.Join(hs, "\n")
	case *Import:
		return aliasList(v.Names)
	case *ImportFrom:
		return v.Module + " " + aliasList(v.Names)
	}
	return ""
}

// Mentions reports whether name may be referenced anywhere under n. Opaque
// text is searched with a word-boundary match, so the answer errs on the
// side of true.
func Mentions(n Node, name string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	found := false
	Inspect(n, func(c Node) bool {
		if found {
			return false
		}
		switch v := c.(type) {
		case *Name:
			if v.Value == name {
				found = true
			}
		case *Attribute:
			if v.Attr == name {
				found = true
			}
		default:
			if t := opaqueText(c); t != "" && re.MatchString(t) {
				found = true
			}
		}
		return !found
	})
	return found
}

// MatchesOpaque reports whether re matches any uninterpreted source text
// (raw statements, raw expressions, parameter code, handler headers)
// under n.
func MatchesOpaque(n Node, re *regexp.Regexp) bool {
	found := false
	Inspect(n, func(c Node) bool {
		if t := opaqueText(c); t != "" && re.MatchString(t) {
			found = true
		}
		return !found
	})
	return found
}

// Dump renders the structure of n without formatting, for comparing trees.
func Dump(n Node) string {
	var b strings.Builder
	dump(&b, n)
	return b.String()
}

func normalize(code string) string {
	return strings.Join(strings.Fields(code), " ")
}

func dump(b *strings.Builder, n Node) {
	b.WriteString("(" + n.Kind().String())
	switch v := n.(type) {
	case *Name:
		b.WriteString(" " + v.Value)
	case *Attribute:
		b.WriteString(" ." + v.Attr)
	case *Arg:
		if v.Star != "" || v.Keyword != "" {
			b.WriteString(" " + v.Star + v.Keyword)
		}
	case *BinaryOp:
		b.WriteString(" " + v.Op)
	case *BoolOp:
		b.WriteString(" " + v.Op)
	case *UnaryOp:
		b.WriteString(" " + v.Op)
	case *Comparison:
		ops := make([]string, len(v.Comparisons))
		for i, c := range v.Comparisons {
			ops[i] = c.Op
		}
		b.WriteString(" " + strings.Join(ops, ","))
	case *Tuple:
		if v.Parens {
			b.WriteString(" parens")
		}
	case *Integer:
		b.WriteString(" " + v.Value)
	case *Float:
		b.WriteString(" " + v.Value)
	case *String:
		b.WriteString(" " + normalize(v.Value))
	case *RawExpr:
		b.WriteString(" " + fmt.Sprintf("%q", normalize(v.Code)))
	case *RawStmt:
		b.WriteString(" " + fmt.Sprintf("%q", normalize(v.Code)))
	case *FunctionDef:
		if v.Async {
			b.WriteString(" async")
		}
		b.WriteString(" " + v.Name)
	case *ClassDef:
		b.WriteString(" " + v.Name)
	case *Param:
		b.WriteString(" " + normalize(v.Code))
	case *For:
		if v.Async {
			b.WriteString(" async")
		}
	case *With:
		if v.Async {
			b.WriteString(" async")
		}
	case *AugAssign:
		b.WriteString(" " + v.Op)
	case *Import:
		b.WriteString(" " + aliasList(v.Names))
	case *ImportFrom:
		if v.Star {
			b.WriteString(" " + v.Module + " *")
		} else {
			b.WriteString(" " + v.Module + " " + aliasList(v.Names))
		}
	case *Try:
		for _, h := range v.Handlers {
			b.WriteString(" [" + normalize(h.Header) + "]")
		}
	case *Dict:
		for _, en := range v.Entries {
			if en.Key == nil {
				b.WriteString(" **")
			}
		}
	}
	for _, c := range Children(n) {
		b.WriteString(" ")
		dump(b, c)
	}
	b.WriteString(")")
}
