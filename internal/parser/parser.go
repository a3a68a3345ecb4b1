package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/QTest-hq/pytestify/pkg/cst"
	"github.com/QTest-hq/pytestify/pkg/result"
)

// Parser parses Python source into a cst.Module using tree-sitter
type Parser struct {
	mu       sync.Mutex
	pyParser *sitter.Parser
}

// NewParser creates a new parser
func NewParser() *Parser {
	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())

	return &Parser{pyParser: pyParser}
}

// Parse parses source with a parser of its own.
func Parse(ctx context.Context, source string) (*cst.Module, error) {
	return NewParser().Parse(ctx, source)
}

// ParseFile reads and parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*cst.Module, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.Parse(ctx, string(content))
}

// Parse parses source code content. Source containing syntax errors
// yields a *ParseError.
func (p *Parser) Parse(ctx context.Context, source string) (*cst.Module, error) {
	content := []byte(source)

	p.mu.Lock()
	tree, err := p.pyParser.ParseCtx(ctx, nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	b := newBuilder(content)
	if root.HasError() {
		return nil, b.firstError(root)
	}

	m := &cst.Module{}
	m.Body, m.Footer, _ = b.collect(b.children(root), -1, -1, "")
	m.IndentUnit = b.unit
	cst.SetModuleSource(m, source)

	return m, nil
}

// ParseStatement parses a snippet holding exactly one statement.
func (p *Parser) ParseStatement(ctx context.Context, snippet string) result.Result[cst.Stmt] {
	m, err := p.Parse(ctx, dedent(snippet))
	if err != nil {
		return result.Fail[cst.Stmt](err)
	}
	if len(m.Body) != 1 {
		return result.Fail[cst.Stmt](fmt.Errorf("expected one statement, found %d", len(m.Body)))
	}
	return result.Ok(m.Body[0])
}

// ParseExpression parses a snippet holding exactly one expression.
func (p *Parser) ParseExpression(ctx context.Context, snippet string) result.Result[cst.Expr] {
	res := p.ParseStatement(ctx, snippet)
	s, err := res.Unwrap()
	if err != nil {
		return result.Fail[cst.Expr](err)
	}
	es, ok := s.(*cst.ExprStmt)
	if !ok {
		return result.Fail[cst.Expr](errors.New("not an expression"))
	}
	return result.Ok(es.Value)
}

// dedent removes the indentation shared by all non-blank lines.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ind := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = ind, false
			continue
		}
		for !strings.HasPrefix(ind, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return s
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

type builder struct {
	src        []byte
	lineStarts []int
	unit       string
}

func newBuilder(src []byte) *builder {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &builder{src: src, lineStarts: starts}
}

// firstError locates the first ERROR or MISSING node
func (b *builder) firstError(root *sitter.Node) *ParseError {
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()

	var found *sitter.Node
	walkTree(cursor, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return false
		}
		return n.HasError()
	})

	if found == nil {
		return &ParseError{Line: 1, Column: 1, Message: "invalid syntax"}
	}

	msg := "invalid syntax"
	if found.IsMissing() {
		msg = fmt.Sprintf("missing %q", found.Type())
	} else if text := strings.TrimSpace(b.text(found)); text != "" {
		if len(text) > 40 {
			text = text[:40] + "..."
		}
		msg = fmt.Sprintf("unexpected %q", text)
	}

	return &ParseError{
		Line:    int(found.StartPoint().Row) + 1,
		Column:  int(found.StartPoint().Column) + 1,
		Message: msg,
	}
}

// walkTree walks the tree and calls fn for each node. Returning false
// skips the node's children.
func walkTree(cursor *sitter.TreeCursor, fn func(*sitter.Node) bool) {
	for {
		descend := fn(cursor.CurrentNode())

		if descend && cursor.GoToFirstChild() {
			continue
		}

		for {
			if cursor.GoToNextSibling() {
				break
			}
			if !cursor.GoToParent() {
				return
			}
		}
	}
}

func (b *builder) children(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		out = append(out, n.Child(i))
	}
	return out
}

func (b *builder) namedChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// end is the node's end offset with trailing whitespace trimmed.
func (b *builder) end(n *sitter.Node) int {
	start, end := int(n.StartByte()), int(n.EndByte())
	for end > start {
		switch b.src[end-1] {
		case ' ', '\t', '\n', '\r', '\f':
			end--
			continue
		}
		break
	}
	return end
}

func (b *builder) text(n *sitter.Node) string {
	return string(b.src[n.StartByte():b.end(n)])
}

func (b *builder) rowOf(offset int) int {
	return sort.Search(len(b.lineStarts), func(i int) bool { return b.lineStarts[i] > offset }) - 1
}

func (b *builder) startRow(n *sitter.Node) int { return int(n.StartPoint().Row) }

func (b *builder) endRow(n *sitter.Node) int {
	end := b.end(n)
	if end > int(n.StartByte()) {
		end--
	}
	return b.rowOf(end)
}

// indentAt returns the whitespace between the start of the line and
// offset, or "" when other text precedes offset on its line.
func (b *builder) indentAt(offset int) string {
	start := b.lineStarts[b.rowOf(offset)]
	prefix := string(b.src[start:offset])
	if strings.TrimLeft(prefix, " \t") != "" {
		return ""
	}
	return prefix
}

func hasComment(nodes []*sitter.Node) bool {
	for _, n := range nodes {
		if n.Type() == "comment" {
			return true
		}
	}
	return false
}

func blanks(lastRow, row int) []cst.Line {
	n := row - lastRow - 1
	if lastRow < 0 {
		n = row
	}
	if n <= 0 {
		return nil
	}
	return make([]cst.Line, n)
}

// collect turns a run of statement and comment nodes into statements.
// headerRow/headerEnd describe the line that opened the body (-1 for a
// module); comments on that line are returned as the header comment.
func (b *builder) collect(nodes []*sitter.Node, headerRow, headerEnd int, parentIndent string) ([]cst.Stmt, []cst.Line, string) {
	var (
		stmts         []cst.Stmt
		pending       []cst.Line
		headerComment string
		last          cst.Stmt
	)
	lastRow, lastEnd := headerRow, headerEnd

	for _, n := range nodes {
		row := b.startRow(n)

		if n.Type() == "comment" {
			text := b.text(n)
			if row == lastRow && lastRow >= 0 && len(pending) == 0 {
				gap := string(b.src[lastEnd:n.StartByte()])
				if last == nil {
					headerComment += gap + text
				} else {
					attachTrailing(last, gap+text)
				}
				lastEnd = b.end(n)
				continue
			}
			pending = append(pending, blanks(lastRow, row)...)
			pending = append(pending, cst.Line{Comment: text})
			lastRow, lastEnd = b.endRow(n), b.end(n)
			continue
		}

		if !n.IsNamed() {
			continue
		}

		s := b.stmt(n)
		tr := cst.MutableTrivia(s)
		if last != nil && row == lastRow && len(pending) == 0 {
			tr.SameLine = true
		} else {
			pending = append(pending, blanks(lastRow, row)...)
		}
		tr.Leading = pending
		pending = nil

		if b.unit == "" && parentIndent == "" {
			if ind := b.indentAt(int(n.StartByte())); ind != "" {
				b.unit = ind
			}
		}

		stmts = append(stmts, s)
		last = s
		lastRow, lastEnd = b.endRow(n), b.end(n)
	}

	return stmts, pending, headerComment
}

// attachTrailing hangs an end-of-line comment on the innermost simple
// statement that ends the line.
func attachTrailing(s cst.Stmt, comment string) {
	if !cst.IsCompound(s) {
		cst.MutableTrivia(s).Trailing += comment
		return
	}
	cst.AppendTail(s, comment)
	blk := lastBlock(s)
	if blk == nil || len(blk.Stmts) == 0 {
		return
	}
	attachTrailing(blk.Stmts[len(blk.Stmts)-1], comment)
}

func lastBlock(s cst.Stmt) *cst.Block {
	switch n := s.(type) {
	case *cst.FunctionDef:
		return n.Body
	case *cst.ClassDef:
		return n.Body
	case *cst.With:
		return n.Body
	case *cst.If:
		if n.Else != nil {
			return n.Else.Body
		}
		if len(n.Elifs) > 0 {
			return n.Elifs[len(n.Elifs)-1].Body
		}
		return n.Body
	case *cst.For:
		if n.Else != nil {
			return n.Else.Body
		}
		return n.Body
	case *cst.While:
		if n.Else != nil {
			return n.Else.Body
		}
		return n.Body
	case *cst.Try:
		if n.Finally != nil {
			return n.Finally.Body
		}
		if n.Else != nil {
			return n.Else.Body
		}
		if len(n.Handlers) > 0 {
			return n.Handlers[len(n.Handlers)-1].Body
		}
		return n.Body
	}
	return nil
}

// bodyOf builds the block of a compound node. Comments that sit between
// the header colon and the block belong to the body too.
func (b *builder) bodyOf(owner, block *sitter.Node) (*cst.Block, string) {
	if block == nil {
		return cst.NewBlock(), ""
	}
	kids := b.children(owner)
	colon := -1
	blockIdx := -1
	for i, k := range kids {
		if k.StartByte() == block.StartByte() && k.Type() == block.Type() {
			blockIdx = i
			break
		}
		if k.Type() == ":" {
			colon = i
		}
	}

	headerRow, headerEnd := b.startRow(block), int(block.StartByte())
	nodes := make([]*sitter.Node, 0)
	if colon >= 0 {
		headerRow, headerEnd = b.endRow(kids[colon]), b.end(kids[colon])
		for _, k := range kids[colon+1 : max(blockIdx, colon+1)] {
			if k.Type() == "comment" {
				nodes = append(nodes, k)
			}
		}
	}
	nodes = append(nodes, b.children(block)...)

	ownerIndent := b.indentAt(int(owner.StartByte()))
	stmts, footer, header := b.collect(nodes, headerRow, headerEnd, ownerIndent)
	return &cst.Block{Stmts: stmts, Footer: footer}, header
}

// childBlock returns the first block child of n
func childBlock(n *sitter.Node) *sitter.Node {
	if body := n.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "block" {
			return c
		}
	}
	return nil
}

func (b *builder) stmt(n *sitter.Node) cst.Stmt {
	var s cst.Stmt
	switch n.Type() {
	case "decorated_definition":
		s = b.decorated(n)
	case "function_definition":
		s = b.function(n, nil)
	case "class_definition":
		s = b.class(n, nil)
	case "if_statement":
		s = b.ifStmt(n)
	case "for_statement":
		s = b.forStmt(n)
	case "while_statement":
		s = b.whileStmt(n)
	case "with_statement":
		s = b.withStmt(n)
	case "try_statement":
		s = b.tryStmt(n)
	default:
		s = b.simple(n)
	}
	cst.SetOrigin(s, b.text(n), b.indentAt(int(n.StartByte())))
	return s
}

func (b *builder) raw(n *sitter.Node) *cst.RawStmt {
	compound := n.Type() == "match_statement"
	for _, c := range b.namedChildren(n) {
		if c.Type() == "block" {
			compound = true
		}
	}
	return &cst.RawStmt{Code: b.text(n), Compound: compound}
}

func (b *builder) simple(n *sitter.Node) cst.Stmt {
	named := b.namedChildren(n)
	if hasComment(named) {
		return b.raw(n)
	}

	switch n.Type() {
	case "expression_statement":
		if len(named) > 1 {
			elts, ok := b.exprs(named)
			if !ok {
				return b.raw(n)
			}
			tuple := &cst.Tuple{Elements: elts}
			cst.SetSource(tuple, b.text(n))
			return &cst.ExprStmt{Value: tuple}
		}
		if len(named) == 0 {
			return b.raw(n)
		}
		inner := named[0]
		switch inner.Type() {
		case "assignment":
			return b.assignment(n, inner)
		case "augmented_assignment":
			return &cst.AugAssign{
				Target: b.expr(inner.ChildByFieldName("left")),
				Op:     b.text(inner.ChildByFieldName("operator")),
				Value:  b.expr(inner.ChildByFieldName("right")),
			}
		}
		return &cst.ExprStmt{Value: b.expr(inner)}
	case "return_statement":
		r := &cst.Return{}
		if len(named) > 0 {
			r.Value = b.expr(named[0])
		}
		return r
	case "pass_statement":
		return &cst.Pass{}
	case "break_statement":
		return &cst.Break{}
	case "continue_statement":
		return &cst.Continue{}
	case "assert_statement":
		if len(named) == 0 || len(named) > 2 {
			return b.raw(n)
		}
		a := &cst.Assert{Test: b.expr(named[0])}
		if len(named) == 2 {
			a.Msg = b.expr(named[1])
		}
		return a
	case "import_statement":
		im := &cst.Import{}
		for _, c := range named {
			im.Names = append(im.Names, b.importAlias(c))
		}
		return im
	case "import_from_statement", "future_import_statement":
		return b.importFrom(n)
	}
	return b.raw(n)
}

func (b *builder) assignment(stmt, n *sitter.Node) cst.Stmt {
	if n.ChildByFieldName("type") != nil {
		return b.raw(stmt)
	}
	a := &cst.Assign{}
	for {
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if left == nil || right == nil {
			return b.raw(stmt)
		}
		a.Targets = append(a.Targets, b.expr(left))
		if right.Type() != "assignment" {
			a.Value = b.expr(right)
			return a
		}
		if right.ChildByFieldName("type") != nil {
			return b.raw(stmt)
		}
		n = right
	}
}

func (b *builder) importAlias(n *sitter.Node) cst.ImportAlias {
	if n.Type() == "aliased_import" {
		return cst.ImportAlias{
			Name:   b.text(n.ChildByFieldName("name")),
			AsName: b.text(n.ChildByFieldName("alias")),
		}
	}
	return cst.ImportAlias{Name: b.text(n)}
}

func (b *builder) importFrom(n *sitter.Node) cst.Stmt {
	im := &cst.ImportFrom{}
	if n.Type() == "future_import_statement" {
		im.Module = "__future__"
	} else if mod := n.ChildByFieldName("module_name"); mod != nil {
		im.Module = b.text(mod)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.Type() == "wildcard_import":
			im.Star = true
		case n.FieldNameForChild(i) == "name":
			im.Names = append(im.Names, b.importAlias(c))
		}
	}
	if im.Module == "" || (!im.Star && len(im.Names) == 0) {
		return b.raw(n)
	}
	return im
}

func (b *builder) decorated(n *sitter.Node) cst.Stmt {
	var decs []*cst.Decorator
	var pending []cst.Line
	for _, c := range b.namedChildren(n) {
		switch c.Type() {
		case "comment":
			pending = append(pending, cst.Line{Comment: b.text(c)})
		case "decorator":
			var value cst.Expr
			for _, e := range b.namedChildren(c) {
				if e.Type() != "comment" {
					value = b.expr(e)
					break
				}
			}
			if value == nil {
				value = cst.NewRawExpr(strings.TrimPrefix(b.text(c), "@"), cst.PrecUnknown)
			}
			decs = append(decs, &cst.Decorator{Leading: pending, Value: value})
			pending = nil
		}
	}

	def := n.ChildByFieldName("definition")
	if def == nil || len(pending) > 0 {
		return b.raw(n)
	}
	var s cst.Stmt
	switch def.Type() {
	case "function_definition":
		s = b.function(def, decs)
	case "class_definition":
		s = b.class(def, decs)
	}
	if _, ok := s.(*cst.FunctionDef); ok {
		return s
	}
	if _, ok := s.(*cst.ClassDef); ok {
		return s
	}
	return b.raw(n)
}

func (b *builder) function(n *sitter.Node, decs []*cst.Decorator) cst.Stmt {
	fn := &cst.FunctionDef{Decorators: decs}
	for _, c := range b.children(n) {
		if c.Type() == "async" {
			fn.Async = true
		}
	}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = b.text(name)
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		fn.TypeParams = b.text(tp)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		named := b.namedChildren(params)
		if hasComment(named) {
			return b.raw(n)
		}
		for _, p := range named {
			fn.Params = append(fn.Params, &cst.Param{Name: b.paramName(p), Code: b.text(p)})
		}
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		fn.Returns = b.expr(ret)
	}
	fn.Body, fn.Trailing = b.bodyOf(n, n.ChildByFieldName("body"))
	return fn
}

func (b *builder) paramName(p *sitter.Node) string {
	switch p.Type() {
	case "identifier":
		return b.text(p)
	case "default_parameter", "typed_default_parameter":
		if name := p.ChildByFieldName("name"); name != nil {
			return b.paramName(name)
		}
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		for _, c := range b.namedChildren(p) {
			if name := b.paramName(c); name != "" {
				return name
			}
		}
	}
	return ""
}

func (b *builder) class(n *sitter.Node, decs []*cst.Decorator) cst.Stmt {
	cls := &cst.ClassDef{Decorators: decs}
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = b.text(name)
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		cls.TypeParams = b.text(tp)
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		args, ok := b.args(supers)
		if !ok {
			return b.raw(n)
		}
		cls.Bases = args
		cls.Parens = true
	}
	cls.Body, cls.Trailing = b.bodyOf(n, n.ChildByFieldName("body"))
	return cls
}

func (b *builder) clause(n *sitter.Node, leading []cst.Line) *cst.Clause {
	body, trailing := b.bodyOf(n, childBlock(n))
	return &cst.Clause{Leading: leading, Trailing: trailing, Body: body}
}

func (b *builder) ifStmt(n *sitter.Node) cst.Stmt {
	s := &cst.If{Test: b.expr(n.ChildByFieldName("condition"))}
	consequence := n.ChildByFieldName("consequence")
	s.Body, s.Trailing = b.bodyOf(n, consequence)

	var pending []cst.Line
	for _, c := range b.children(n) {
		switch c.Type() {
		case "comment":
			if consequence != nil && c.StartByte() > consequence.StartByte() {
				pending = append(pending, cst.Line{Comment: b.text(c)})
			}
		case "elif_clause":
			e := &cst.Elif{Leading: pending, Test: b.expr(c.ChildByFieldName("condition"))}
			e.Body, e.Trailing = b.bodyOf(c, c.ChildByFieldName("consequence"))
			s.Elifs = append(s.Elifs, e)
			pending = nil
		case "else_clause":
			s.Else = b.clause(c, pending)
			pending = nil
		}
	}
	keepFooter(s, pending)
	return s
}

// keepFooter appends comments left after the final clause to the last
// block of s.
func keepFooter(s cst.Stmt, lines []cst.Line) {
	if len(lines) == 0 {
		return
	}
	if blk := lastBlock(s); blk != nil {
		blk.Footer = append(blk.Footer, lines...)
	}
}

func (b *builder) elseOf(n *sitter.Node, body *sitter.Node) *cst.Clause {
	var pending []cst.Line
	for _, c := range b.children(n) {
		switch c.Type() {
		case "comment":
			if body != nil && c.StartByte() > body.StartByte() {
				pending = append(pending, cst.Line{Comment: b.text(c)})
			}
		case "else_clause":
			return b.clause(c, pending)
		}
	}
	return nil
}

func (b *builder) forStmt(n *sitter.Node) cst.Stmt {
	s := &cst.For{
		Target: b.expr(n.ChildByFieldName("left")),
		Iter:   b.expr(n.ChildByFieldName("right")),
	}
	for _, c := range b.children(n) {
		if c.Type() == "async" {
			s.Async = true
		}
	}
	body := n.ChildByFieldName("body")
	s.Body, s.Trailing = b.bodyOf(n, body)
	s.Else = b.elseOf(n, body)
	return s
}

func (b *builder) whileStmt(n *sitter.Node) cst.Stmt {
	s := &cst.While{Test: b.expr(n.ChildByFieldName("condition"))}
	body := n.ChildByFieldName("body")
	s.Body, s.Trailing = b.bodyOf(n, body)
	s.Else = b.elseOf(n, body)
	return s
}

func (b *builder) withStmt(n *sitter.Node) cst.Stmt {
	s := &cst.With{}
	for _, c := range b.children(n) {
		switch c.Type() {
		case "async":
			s.Async = true
		case "with_clause":
			for _, item := range b.namedChildren(c) {
				if item.Type() == "comment" {
					return b.raw(n)
				}
				if item.Type() != "with_item" {
					continue
				}
				s.Items = append(s.Items, b.withItem(item))
			}
		}
	}
	if len(s.Items) == 0 {
		return b.raw(n)
	}
	s.Body, s.Trailing = b.bodyOf(n, n.ChildByFieldName("body"))
	return s
}

func (b *builder) withItem(item *sitter.Node) *cst.WithItem {
	value := item.ChildByFieldName("value")
	if value == nil && item.NamedChildCount() > 0 {
		value = item.NamedChild(0)
	}
	wi := &cst.WithItem{}
	if alias := item.ChildByFieldName("alias"); alias != nil {
		wi.Alias = b.expr(alias)
	}
	if value != nil && value.Type() == "as_pattern" {
		inner := b.namedChildren(value)
		if len(inner) > 0 {
			wi.Value = b.expr(inner[0])
		}
		if alias := value.ChildByFieldName("alias"); alias != nil {
			wi.Alias = b.aliasTarget(alias)
		} else if len(inner) > 1 {
			wi.Alias = b.aliasTarget(inner[len(inner)-1])
		}
		return wi
	}
	if value != nil {
		wi.Value = b.expr(value)
	}
	return wi
}

func (b *builder) aliasTarget(n *sitter.Node) cst.Expr {
	if n.Type() == "as_pattern_target" && n.NamedChildCount() == 1 {
		return b.expr(n.NamedChild(0))
	}
	return b.expr(n)
}

func (b *builder) tryStmt(n *sitter.Node) cst.Stmt {
	s := &cst.Try{}
	body := n.ChildByFieldName("body")
	s.Body, s.Trailing = b.bodyOf(n, body)

	var pending []cst.Line
	for _, c := range b.children(n) {
		switch c.Type() {
		case "comment":
			if body != nil && c.StartByte() > body.StartByte() {
				pending = append(pending, cst.Line{Comment: b.text(c)})
			}
		case "except_clause", "except_group_clause":
			block := childBlock(c)
			h := &cst.Handler{Leading: pending}
			h.Header = b.clauseHeader(c, block)
			h.Body, h.Trailing = b.bodyOf(c, block)
			s.Handlers = append(s.Handlers, h)
			pending = nil
		case "else_clause":
			s.Else = b.clause(c, pending)
			pending = nil
		case "finally_clause":
			s.Finally = b.clause(c, pending)
			pending = nil
		}
	}
	keepFooter(s, pending)
	return s
}

// clauseHeader returns the clause text up to, not including, the colon
// that opens its block.
func (b *builder) clauseHeader(c, block *sitter.Node) string {
	end := int(c.EndByte())
	for i := 0; i < int(c.ChildCount()); i++ {
		k := c.Child(i)
		if block != nil && k.StartByte() >= block.StartByte() {
			break
		}
		if k.Type() == ":" {
			end = int(k.StartByte())
		}
	}
	return strings.TrimRight(string(b.src[c.StartByte():end]), " \t")
}

func (b *builder) args(list *sitter.Node) ([]*cst.Arg, bool) {
	named := b.namedChildren(list)
	if hasComment(named) {
		return nil, false
	}
	args := make([]*cst.Arg, 0, len(named))
	for _, c := range named {
		switch c.Type() {
		case "keyword_argument":
			args = append(args, &cst.Arg{
				Keyword: b.text(c.ChildByFieldName("name")),
				Value:   b.expr(c.ChildByFieldName("value")),
			})
		case "list_splat", "dictionary_splat":
			star := "*"
			if c.Type() == "dictionary_splat" {
				star = "**"
			}
			inner := b.namedChildren(c)
			if len(inner) != 1 {
				return nil, false
			}
			args = append(args, &cst.Arg{Star: star, Value: b.expr(inner[0])})
		default:
			args = append(args, &cst.Arg{Value: b.expr(c)})
		}
	}
	return args, true
}

var rawPrecedence = map[string]cst.Precedence{
	"list_comprehension":       cst.PrecAtom,
	"dictionary_comprehension": cst.PrecAtom,
	"set_comprehension":        cst.PrecAtom,
	"generator_expression":     cst.PrecAtom,
	"ellipsis":                 cst.PrecAtom,
	"conditional_expression":   cst.PrecTernary,
	"lambda":                   cst.PrecLambda,
	"await":                    cst.PrecAwait,
}

func (b *builder) expr(n *sitter.Node) cst.Expr {
	if n == nil {
		return cst.NewRawExpr("", cst.PrecUnknown)
	}
	e := b.exprShape(n)
	cst.SetSource(e, b.text(n))
	return e
}

func (b *builder) rawExpr(n *sitter.Node) cst.Expr {
	return cst.NewRawExpr(b.text(n), rawPrecedence[n.Type()])
}

func (b *builder) exprs(nodes []*sitter.Node) ([]cst.Expr, bool) {
	out := make([]cst.Expr, 0, len(nodes))
	for _, c := range nodes {
		if c.Type() == "comment" {
			return nil, false
		}
		out = append(out, b.expr(c))
	}
	return out, true
}

func (b *builder) exprShape(n *sitter.Node) cst.Expr {
	switch n.Type() {
	case "identifier", "true", "false", "none":
		return &cst.Name{Value: b.text(n)}
	case "integer":
		return &cst.Integer{Value: b.text(n)}
	case "float":
		return &cst.Float{Value: b.text(n)}
	case "string", "concatenated_string":
		return &cst.String{Value: b.text(n)}
	case "attribute":
		obj, attr := n.ChildByFieldName("object"), n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return b.rawExpr(n)
		}
		return &cst.Attribute{Value: b.expr(obj), Attr: b.text(attr)}
	case "call":
		fn, args := n.ChildByFieldName("function"), n.ChildByFieldName("arguments")
		if fn == nil || args == nil || args.Type() != "argument_list" {
			return b.rawExpr(n)
		}
		list, ok := b.args(args)
		if !ok {
			return b.rawExpr(n)
		}
		return &cst.Call{Func: b.expr(fn), Args: list}
	case "subscript":
		value := n.ChildByFieldName("value")
		open, close := -1, -1
		for i := 0; i < int(n.ChildCount()); i++ {
			switch n.Child(i).Type() {
			case "[":
				if open < 0 {
					open = int(n.Child(i).EndByte())
				}
			case "]":
				close = int(n.Child(i).StartByte())
			}
		}
		if value == nil || open < 0 || close < open {
			return b.rawExpr(n)
		}
		index := cst.NewRawExpr(string(b.src[open:close]), cst.PrecUnknown)
		return &cst.Subscript{Value: b.expr(value), Index: index}
	case "binary_operator":
		left, op, right := n.ChildByFieldName("left"), n.ChildByFieldName("operator"), n.ChildByFieldName("right")
		if left == nil || op == nil || right == nil {
			return b.rawExpr(n)
		}
		return &cst.BinaryOp{Left: b.expr(left), Op: b.text(op), Right: b.expr(right)}
	case "boolean_operator":
		left, op, right := n.ChildByFieldName("left"), n.ChildByFieldName("operator"), n.ChildByFieldName("right")
		if left == nil || op == nil || right == nil {
			return b.rawExpr(n)
		}
		return &cst.BoolOp{Left: b.expr(left), Op: b.text(op), Right: b.expr(right)}
	case "unary_operator":
		op, arg := n.ChildByFieldName("operator"), n.ChildByFieldName("argument")
		if op == nil || arg == nil {
			return b.rawExpr(n)
		}
		return &cst.UnaryOp{Op: b.text(op), Operand: b.expr(arg)}
	case "not_operator":
		arg := n.ChildByFieldName("argument")
		if arg == nil {
			return b.rawExpr(n)
		}
		return &cst.UnaryOp{Op: "not", Operand: b.expr(arg)}
	case "comparison_operator":
		var operands []*sitter.Node
		var ops []string
		for _, c := range b.children(n) {
			switch {
			case c.Type() == "comment":
				return b.rawExpr(n)
			case c.IsNamed():
				operands = append(operands, c)
			default:
				ops = append(ops, strings.Join(strings.Fields(b.text(c)), " "))
			}
		}
		if len(operands) != len(ops)+1 || len(ops) == 0 {
			return b.rawExpr(n)
		}
		cmp := &cst.Comparison{Left: b.expr(operands[0])}
		for i, op := range ops {
			cmp.Comparisons = append(cmp.Comparisons, cst.CompareTarget{Op: op, Right: b.expr(operands[i+1])})
		}
		return cmp
	case "list", "set", "tuple", "expression_list":
		elts, ok := b.exprs(b.namedChildren(n))
		if !ok {
			return b.rawExpr(n)
		}
		switch n.Type() {
		case "list":
			return &cst.List{Elements: elts}
		case "set":
			return &cst.Set{Elements: elts}
		case "tuple":
			return &cst.Tuple{Elements: elts, Parens: true}
		}
		return &cst.Tuple{Elements: elts}
	case "dictionary":
		d := &cst.Dict{}
		for _, c := range b.namedChildren(n) {
			switch c.Type() {
			case "pair":
				d.Entries = append(d.Entries, cst.DictEntry{
					Key:   b.expr(c.ChildByFieldName("key")),
					Value: b.expr(c.ChildByFieldName("value")),
				})
			case "dictionary_splat":
				inner := b.namedChildren(c)
				if len(inner) != 1 {
					return b.rawExpr(n)
				}
				d.Entries = append(d.Entries, cst.DictEntry{Value: b.expr(inner[0])})
			default:
				return b.rawExpr(n)
			}
		}
		return d
	case "parenthesized_expression":
		inner := b.namedChildren(n)
		if len(inner) != 1 || inner[0].Type() == "comment" {
			return b.rawExpr(n)
		}
		return &cst.Paren{Inner: b.expr(inner[0])}
	}
	return b.rawExpr(n)
}
