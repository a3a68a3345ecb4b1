package transform

import (
	"strings"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

// EnsureImports adds "import <name>" for every needed module that the
// module does not already import. New imports go after the docstring and
// any __future__ imports.
func EnsureImports(body []cst.Stmt, need ImportSet) []cst.Stmt {
	var missing []string
	for _, name := range need.Names() {
		if !imports(body, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return body
	}

	at := importPosition(body)
	added := make([]cst.Stmt, len(missing))
	for i, name := range missing {
		added[i] = cst.NewImport(name)
	}
	first := cst.MutableTrivia(added[0])

	rest := append([]cst.Stmt(nil), body[at:]...)
	switch {
	case len(rest) == 0:
		if at > 0 {
			first.Leading = []cst.Line{{}}
		}
	case isImport(rest[0]):
		// Join the existing import group and take over its header.
		first.Leading = cst.TriviaOf(rest[0]).Leading
		rest[0] = cst.WithLeading(rest[0], nil)
	case at == 0:
		// Lines up to the last blank line are a file header; the rest
		// belong to the statement.
		header, own := splitHeader(cst.TriviaOf(rest[0]).Leading)
		first.Leading = header
		rest[0] = cst.WithLeading(rest[0], append(separation(rest[0]), own...))
	default:
		first.Leading = []cst.Line{{}}
		if len(cst.TriviaOf(rest[0]).Leading) == 0 {
			rest[0] = cst.WithLeading(rest[0], separation(rest[0]))
		}
	}

	out := make([]cst.Stmt, 0, len(body)+len(added))
	out = append(out, body[:at]...)
	out = append(out, added...)
	return append(out, rest...)
}

// separation is the blank lines placed between new imports and s.
func separation(s cst.Stmt) []cst.Line {
	switch s.(type) {
	case *cst.ClassDef, *cst.FunctionDef:
		return []cst.Line{{}, {}}
	}
	return []cst.Line{{}}
}

func splitHeader(lines []cst.Line) (header, own []cst.Line) {
	last := -1
	for i, l := range lines {
		if l.Comment == "" {
			last = i
		}
	}
	if last < 0 {
		return nil, lines
	}
	return trimBlank(lines[:last]), lines[last+1:]
}

// trimBlank drops blank lines from both ends.
func trimBlank(lines []cst.Line) []cst.Line {
	for len(lines) > 0 && lines[0].Comment == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1].Comment == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func isImport(s cst.Stmt) bool {
	switch s.(type) {
	case *cst.Import, *cst.ImportFrom:
		return true
	}
	return false
}

// imports reports whether body binds name with a top-level import.
func imports(body []cst.Stmt, name string) bool {
	for _, s := range body {
		im, ok := s.(*cst.Import)
		if !ok {
			continue
		}
		for _, a := range im.Names {
			if a.AsName == "" && (a.Name == name || strings.HasPrefix(a.Name, name+".")) {
				return true
			}
		}
	}
	return false
}

func importPosition(body []cst.Stmt) int {
	at := 0
	if len(body) > 0 {
		if es, ok := body[0].(*cst.ExprStmt); ok {
			if _, isDoc := es.Value.(*cst.String); isDoc {
				at = 1
			}
		}
	}
	for at < len(body) && isFutureImport(body[at]) {
		at++
	}
	return at
}

func isFutureImport(s cst.Stmt) bool {
	switch s := s.(type) {
	case *cst.ImportFrom:
		return s.Module == "__future__"
	case *cst.RawStmt:
		f := strings.Fields(s.Code)
		return len(f) > 1 && f[0] == "from" && f[1] == "__future__"
	}
	return false
}

// RemoveUnittestImports drops unittest imports whose bound names are no
// longer referenced. Comments above a removed import move to the next
// statement.
func RemoveUnittestImports(body []cst.Stmt) []cst.Stmt {
	out := make([]cst.Stmt, 0, len(body))
	var carry []cst.Line
	changed, dropped := false, false
	for i, s := range body {
		next := s
		switch im := s.(type) {
		case *cst.Import:
			names := unusedAliases(body, i, im.Names, func(a cst.ImportAlias) bool {
				return a.Name == "unittest" || strings.HasPrefix(a.Name, "unittest.")
			})
			if len(names) != len(im.Names) {
				if len(names) == 0 {
					next = nil
				} else {
					next = cst.Adopt(&cst.Import{Names: names}, im)
				}
			}
		case *cst.ImportFrom:
			if im.Module != "unittest" || im.Star {
				break
			}
			names := unusedAliases(body, i, im.Names, func(cst.ImportAlias) bool { return true })
			if len(names) != len(im.Names) {
				if len(names) == 0 {
					next = nil
				} else {
					next = cst.Adopt(&cst.ImportFrom{Module: im.Module, Names: names}, im)
				}
			}
		}

		if next == nil {
			changed = true
			dropped = true
			carry = append(carry, comments(s)...)
			continue
		}
		if next != s {
			changed = true
		}
		if len(carry) > 0 {
			next = carryComments(next, carry)
			carry = nil
		}
		if len(out) == 0 && dropped {
			// The file now starts here.
			next = cst.WithLeading(next, trimLeadingBlank(cst.TriviaOf(next).Leading))
		}
		out = append(out, next)
	}
	if !changed {
		return body
	}
	return out
}

func trimLeadingBlank(lines []cst.Line) []cst.Line {
	for len(lines) > 0 && lines[0].Comment == "" {
		lines = lines[1:]
	}
	return lines
}

// unusedAliases returns the aliases to keep: those not selected by
// candidate, plus selected ones still referenced outside statement skip.
func unusedAliases(body []cst.Stmt, skip int, names []cst.ImportAlias, candidate func(cst.ImportAlias) bool) []cst.ImportAlias {
	var kept []cst.ImportAlias
	for _, a := range names {
		if !candidate(a) || referenced(body, skip, boundName(a)) {
			kept = append(kept, a)
		}
	}
	return kept
}

func referenced(body []cst.Stmt, skip int, name string) bool {
	for i, s := range body {
		if i != skip && cst.Mentions(s, name) {
			return true
		}
	}
	return false
}

// RemoveMainBlock drops a trailing
//
//	if __name__ == "__main__":
//	    unittest.main()
//
// block. Comments above it are kept.
func RemoveMainBlock(m *cst.Module) *cst.Module {
	body := m.Body
	for i, s := range body {
		if !isUnittestMain(s) {
			continue
		}
		out := append(append([]cst.Stmt(nil), body[:i]...), body[i+1:]...)
		next := m.WithBody(out)
		if lines := comments(s); len(lines) > 0 {
			next.Footer = append(lines, m.Footer...)
		}
		return next
	}
	return m
}

func isUnittestMain(s cst.Stmt) bool {
	cond, ok := s.(*cst.If)
	if !ok || len(cond.Elifs) > 0 || cond.Else != nil || len(cond.Body.Stmts) != 1 {
		return false
	}
	cmp, ok := cst.Unparen(cond.Test).(*cst.Comparison)
	if !ok || len(cmp.Comparisons) != 1 || cmp.Comparisons[0].Op != "==" {
		return false
	}
	left, right := cmp.Left, cmp.Comparisons[0].Right
	if !(isDunderName(left) && isMainString(right)) && !(isDunderName(right) && isMainString(left)) {
		return false
	}
	es, ok := cond.Body.Stmts[0].(*cst.ExprStmt)
	if !ok {
		return false
	}
	call, ok := es.Value.(*cst.Call)
	return ok && cst.IsDotted(call.Func, "unittest.main")
}

func isDunderName(e cst.Expr) bool { return cst.IsDotted(e, "__name__") }

func isMainString(e cst.Expr) bool {
	s, ok := e.(*cst.String)
	return ok && (s.Value == `"__main__"` || s.Value == `'__main__'`)
}
