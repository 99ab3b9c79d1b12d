package callgraph

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph/formats/dot"
	"gonum.org/v1/gonum/graph/formats/dot/ast"
)

// Dialect is a call-graph text format.
type Dialect string

const (
	// DialectDOT is Graphviz as printed by opt's call-graph printer.
	DialectDOT Dialect = "dot"
	// DialectPlain is `node <label>` / `edge <caller> <callee>` lines.
	DialectPlain Dialect = "plain"
)

// Stats describes what a parse saw.
type Stats struct {
	Dialect Dialect `json:"dialect"`
	Nodes   int     `json:"nodes"`
	Edges   int     `json:"edges"`
	// DanglingEdges counts DOT edges naming an undeclared node id.
	DanglingEdges int `json:"danglingEdges"`
}

// dotStmtRe recognizes a headerless DOT node or edge statement.
var dotStmtRe = regexp.MustCompile(`^\s*("[^"]*"|[\w.]+)\s*(\[|->)`)

// Parse reads a call graph in either dialect, detected from the first
// meaningful line.
func Parse(r io.Reader) (*Graph, Stats, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, Stats{}, err
	}
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")

	dialect, headed := detect(lines)
	if dialect != DialectDOT {
		return parsePlain(lines)
	}
	if !headed {
		// bare statements, as left by tools that strip the graph block
		src = append(append([]byte("digraph {\n"), src...), "\n}\n"...)
	}
	return parseDOT(src)
}

// detect reports the dialect and, for DOT, whether a graph header opens it.
func detect(lines []string) (Dialect, bool) {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") || strings.HasPrefix(l, "//") {
			continue
		}
		if strings.HasPrefix(l, "digraph") || strings.HasPrefix(l, "graph") ||
			strings.HasPrefix(l, "strict") {
			return DialectDOT, true
		}
		if dotStmtRe.MatchString(l) {
			return DialectDOT, false
		}
		return DialectPlain, false
	}
	return DialectPlain, false
}

// pseudoLabels are nodes opt adds for calls crossing the module boundary.
var pseudoLabels = map[string]bool{
	"external node": true,
	"null function": true,
}

// dotCollector flattens a DOT AST into node labels and edge endpoints.
type dotCollector struct {
	order  []string
	labels map[string]string
	edges  [][2]string
}

func (c *dotCollector) node(n *ast.Node, attrs []*ast.Attr) {
	id := unquoteDOT(n.ID)
	if _, ok := c.labels[id]; !ok {
		c.order = append(c.order, id)
		c.labels[id] = ""
	}
	for _, a := range attrs {
		if a.Key != "label" {
			continue
		}
		if v := recordLabel(unquoteDOT(a.Val)); v != "" {
			c.labels[id] = v
		}
	}
}

// vertexIDs returns the node ids a vertex stands for; a subgraph vertex
// stands for every node declared inside it.
func (c *dotCollector) vertexIDs(v ast.Vertex) []string {
	switch v := v.(type) {
	case *ast.Node:
		return []string{unquoteDOT(v.ID)}
	case *ast.Subgraph:
		var ids []string
		for _, stmt := range v.Stmts {
			switch s := stmt.(type) {
			case *ast.NodeStmt:
				ids = append(ids, unquoteDOT(s.Node.ID))
			case *ast.EdgeStmt:
				ids = append(ids, c.vertexIDs(s.From)...)
				for e := s.To; e != nil; e = e.To {
					ids = append(ids, c.vertexIDs(e.Vertex)...)
				}
			case *ast.Subgraph:
				ids = append(ids, c.vertexIDs(s)...)
			}
		}
		return ids
	}
	return nil
}

func (c *dotCollector) stmts(stmts []ast.Stmt) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.NodeStmt:
			c.node(s.Node, s.Attrs)
		case *ast.Subgraph:
			c.stmts(s.Stmts)
		case *ast.EdgeStmt:
			if sub, ok := s.From.(*ast.Subgraph); ok {
				c.stmts(sub.Stmts)
			}
			from := c.vertexIDs(s.From)
			for e := s.To; e != nil; e = e.To {
				if sub, ok := e.Vertex.(*ast.Subgraph); ok {
					c.stmts(sub.Stmts)
				}
				to := c.vertexIDs(e.Vertex)
				for _, f := range from {
					for _, t := range to {
						c.edges = append(c.edges, [2]string{f, t})
					}
				}
				from = to
			}
		}
	}
}

func parseDOT(src []byte) (*Graph, Stats, error) {
	stats := Stats{Dialect: DialectDOT}
	file, err := dot.ParseBytes(src)
	if err != nil {
		return nil, stats, fmt.Errorf("parse dot: %w", err)
	}

	c := &dotCollector{labels: make(map[string]string)}
	for _, dg := range file.Graphs {
		c.stmts(dg.Stmts)
	}

	g := New()
	ids := make(map[string]int)
	pseudo := make(map[string]bool)
	// Edge endpoints never declared with a node statement stay dangling.
	for _, id := range c.order {
		label := c.labels[id]
		if label == "" {
			label = id
		}
		if pseudoLabels[label] {
			pseudo[id] = true
			continue
		}
		ids[id] = g.AddNode(label)
	}

	for _, e := range c.edges {
		if pseudo[e[0]] || pseudo[e[1]] {
			continue
		}
		from, okFrom := ids[e[0]]
		to, okTo := ids[e[1]]
		if !okFrom || !okTo {
			stats.DanglingEdges++
			continue
		}
		g.AddEdge(from, to)
	}

	stats.Nodes = g.Len()
	stats.Edges = g.EdgeCount()
	return g, stats, nil
}

// unquoteDOT strips the quotes around a DOT string id. Escapes are left for
// recordLabel, since DOT only defines \" and keeps other backslashes.
func unquoteDOT(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// recordLabel unescapes a DOT record label and returns its first field.
func recordLabel(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			b.WriteByte(raw[i+1])
			i++
			continue
		}
		if c == '|' {
			break
		}
		b.WriteByte(c)
	}
	s := strings.TrimSpace(b.String())
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func parsePlain(lines []string) (*Graph, Stats, error) {
	g := New()
	stats := Stats{Dialect: DialectPlain}

	for n, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		fields, err := splitFields(l)
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", n+1, err)
		}
		switch {
		case fields[0] == "node" && len(fields) == 2:
			g.AddNode(fields[1])
		case fields[0] == "node" && len(fields) > 2:
			// unquoted label with spaces, e.g. `<A as T>::f`
			g.AddNode(strings.TrimSpace(l[len("node"):]))
		case fields[0] == "edge" && len(fields) == 3:
			g.AddEdge(g.AddNode(fields[1]), g.AddNode(fields[2]))
		default:
			return nil, stats, fmt.Errorf("line %d: malformed record %q", n+1, l)
		}
	}

	stats.Nodes = g.Len()
	stats.Edges = g.EdgeCount()
	return g, stats, nil
}

// splitFields splits on whitespace, treating Go-quoted strings as single
// fields so labels may contain spaces. A tab-separated line is split on tabs
// only.
func splitFields(l string) ([]string, error) {
	if strings.Contains(l, "\t") {
		parts := strings.Split(l, "\t")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}

	var out []string
	for l = strings.TrimSpace(l); l != ""; l = strings.TrimSpace(l) {
		if l[0] == '"' {
			q, err := strconv.QuotedPrefix(l)
			if err != nil {
				return nil, err
			}
			v, _ := strconv.Unquote(q)
			out = append(out, v)
			l = l[len(q):]
			continue
		}
		i := strings.IndexAny(l, " \t")
		if i < 0 {
			out = append(out, l)
			break
		}
		out = append(out, l[:i])
		l = l[i:]
	}
	return out, nil
}

// WritePlain writes g in the plain dialect, quoting labels that need it.
func WritePlain(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	for _, n := range g.Nodes() {
		if _, err := fmt.Fprintf(bw, "node %s\n", quoteLabel(n.Label)); err != nil {
			return err
		}
	}
	for _, n := range g.Nodes() {
		for _, callee := range g.Callees(n.ID) {
			if _, err := fmt.Fprintf(bw, "edge %s %s\n", quoteLabel(n.Label), quoteLabel(g.Node(callee).Label)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func quoteLabel(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return strconv.Quote(s)
	}
	return s
}
