//go:build cgo

package scanner

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Available reports whether scanning is available in this build.
func Available() bool {
	return true
}

func (s *Scanner) scanSource(ctx context.Context, path string, src []byte, root CrateRoot, mods []string) (fileScan, error) {
	src = rewriteUnsafeAttributes(src)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fileScan{}, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	node := tree.RootNode()
	if node.HasError() {
		return fileScan{}, fmt.Errorf("syntax error near line %d", firstErrorLine(node))
	}

	w := &walker{
		src:          src,
		file:         path,
		includeTests: s.opts.IncludeTests,
		counts:       map[string]*FunctionRecord{},
	}
	w.container(node, scope{crate: root.CrateName, mods: mods})

	out := fileScan{file: ScannedFile{MarkerCount: w.markers}}
	for _, p := range w.order {
		out.file.Functions = append(out.file.Functions, *w.counts[p])
	}
	out.findings = w.findings
	return out, nil
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.HasError() {
			return firstErrorLine(c)
		}
	}
	return int(n.StartPoint().Row) + 1
}

// scope is the naming context of a node.
type scope struct {
	crate string
	mods  []string
	// self is the rendered impl self type, e.g. `Wrapper<_>`.
	self string
	// fns are the enclosing named functions, outermost first.
	fns []string
	// item is the enclosing named non-function item (const, static).
	item string
}

func (sc scope) path() string {
	parts := append([]string{sc.crate}, sc.mods...)
	if sc.self != "" {
		parts = append(parts, sc.self)
	}
	parts = append(parts, sc.fns...)
	if len(sc.fns) == 0 && sc.item != "" {
		parts = append(parts, sc.item)
	}
	return strings.Join(parts, "::")
}

func (sc scope) withMod(name string) scope {
	sc.mods = append(append([]string(nil), sc.mods...), name)
	sc.self = ""
	sc.fns = nil
	sc.item = ""
	return sc
}

func (sc scope) withFn(name string) scope {
	sc.fns = append(append([]string(nil), sc.fns...), name)
	return sc
}

type walker struct {
	src          []byte
	file         string
	includeTests bool

	markers  int
	findings []Finding
	counts   map[string]*FunctionRecord
	order    []string
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) record(sc scope, kind Kind, n *sitter.Node) {
	path := sc.path()
	line := int(n.StartPoint().Row) + 1

	w.markers++
	w.findings = append(w.findings, Finding{Path: path, File: w.file, Kind: kind, Line: line})

	rec, ok := w.counts[path]
	if !ok {
		rec = &FunctionRecord{Path: path, Line: line}
		w.counts[path] = rec
		w.order = append(w.order, path)
	}
	rec.Markers++
}

// container walks the children of a node that holds items, pairing each
// item with the outer attributes written before it.
func (w *walker) container(n *sitter.Node, sc scope) {
	var attrs []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "attribute_item":
			attrs = append(attrs, child)
			continue
		case "inner_attribute_item":
			if !w.includeTests && isTestAttribute(w.text(child)) {
				return
			}
			if isUnsafeAttribute(w.text(child)) {
				w.record(sc, KindUnsafeAttribute, child)
			}
			continue
		case "line_comment", "block_comment":
			continue
		}
		w.item(child, attrs, sc)
		attrs = nil
	}
}

// item handles one node together with its outer attributes.
func (w *walker) item(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	if !w.includeTests {
		for _, a := range attrs {
			if isTestAttribute(w.text(a)) {
				return
			}
		}
	}

	inner := w.itemScope(n, sc)
	for _, a := range attrs {
		if isUnsafeAttribute(w.text(a)) {
			w.record(inner, KindUnsafeAttribute, a)
		}
	}

	switch n.Type() {
	case "function_item":
		if hasModifier(n, "function_modifiers", "unsafe") {
			w.record(inner, KindUnsafeFn, n)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			w.container(body, inner)
		}
	case "impl_item":
		if hasChildType(n, "unsafe") {
			w.record(inner, KindUnsafeImpl, n)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			w.container(body, inner)
		}
	case "mod_item":
		if body := n.ChildByFieldName("body"); body != nil {
			w.container(body, inner)
		}
	case "unsafe_block":
		w.record(sc, KindUnsafeBlock, n)
		w.children(n, sc)
	default:
		w.children(n, inner)
	}
}

// children walks every child of an expression-level node. Blocks are
// containers since they may hold nested items.
func (w *walker) children(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "block" || child.Type() == "declaration_list" {
			w.container(child, sc)
			continue
		}
		w.item(child, nil, sc)
	}
}

// itemScope returns the scope inside n.
func (w *walker) itemScope(n *sitter.Node, sc scope) scope {
	switch n.Type() {
	case "function_item":
		if name := n.ChildByFieldName("name"); name != nil {
			return sc.withFn(w.text(name))
		}
	case "mod_item":
		if name := n.ChildByFieldName("name"); name != nil {
			return sc.withMod(w.text(name))
		}
	case "impl_item":
		if t := n.ChildByFieldName("type"); t != nil {
			return w.implScope(w.text(t), sc)
		}
	case "trait_item":
		if name := n.ChildByFieldName("name"); name != nil {
			out := sc
			out.self = w.text(name)
			out.fns = nil
			out.item = ""
			return out
		}
	case "const_item", "static_item":
		if name := n.ChildByFieldName("name"); name != nil && len(sc.fns) == 0 {
			sc.item = w.text(name)
		}
	}
	return sc
}

// implScope resolves the impl self type against the current module.
// `crate::`, `self::` and `super::` prefixes are honoured; other paths are
// taken relative to the current module.
func (w *walker) implScope(typ string, sc scope) scope {
	typ = strings.TrimSpace(typ)
	for _, p := range []string{"&mut ", "&", "*const ", "*mut ", "dyn "} {
		typ = strings.TrimSpace(strings.TrimPrefix(typ, p))
	}
	typ = placeholderGenerics(typ)

	mods := append([]string(nil), sc.mods...)
	segs := splitTypePath(typ)
	for len(segs) > 1 {
		switch segs[0] {
		case "crate":
			mods = nil
		case "self":
		case "super":
			if len(mods) > 0 {
				mods = mods[:len(mods)-1]
			}
		default:
			mods = append(mods, segs[0])
		}
		segs = segs[1:]
	}

	out := sc
	out.mods = mods
	out.self = segs[0]
	out.fns = nil
	out.item = ""
	return out
}

// placeholderGenerics renders each top-level generic argument list as
// wildcard placeholders: `Wrapper<T, U>` becomes `Wrapper<_, _>`.
func placeholderGenerics(typ string) string {
	var b strings.Builder
	depth := 0
	args := 0
	for i := 0; i < len(typ); i++ {
		c := typ[i]
		switch {
		case c == '<':
			if depth == 0 {
				args = 1
			}
			depth++
		case c == '>' && depth > 0 && !(i > 0 && typ[i-1] == '-'):
			depth--
			if depth == 0 {
				b.WriteString("<" + strings.Repeat("_, ", args-1) + "_>")
			}
		case c == ',' && depth == 1:
			args++
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func splitTypePath(typ string) []string {
	var segs []string
	depth := 0
	start := 0
	for i := 0; i < len(typ); i++ {
		switch typ[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(typ) && typ[i+1] == ':' {
				segs = append(segs, typ[start:i])
				start = i + 2
				i++
			}
		}
	}
	return append(segs, typ[start:])
}

func hasChildType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return true
		}
	}
	return false
}

func hasModifier(n *sitter.Node, container, modifier string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.Type() == container && hasChildType(c, modifier) {
			return true
		}
	}
	return false
}

// attributeBody returns the attribute content without `#[`, `#![`, `]`
// and whitespace.
func attributeBody(text string) string {
	text = strings.TrimPrefix(text, "#!")
	text = strings.TrimPrefix(text, "#")
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	return strings.Join(strings.Fields(text), "")
}

func isTestAttribute(text string) bool {
	body := attributeBody(text)
	return body == "test" || body == "cfg(test)"
}

func isUnsafeAttribute(text string) bool {
	return strings.HasPrefix(attributeBody(text), unsafeAttrIdent+"(")
}
