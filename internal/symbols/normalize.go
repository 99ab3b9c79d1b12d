// Package symbols normalises compiled symbol labels and source-level paths
// into comparable qualified paths, and matches unsafe findings onto
// call-graph nodes.
package symbols

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Symbol is a normalised qualified path.
type Symbol struct {
	// Base is the qualified path without generic arguments or trailing
	// synthetic segments, e.g. `m::g`.
	Base string `json:"base"`
	// Full keeps generic arguments and synthetic segments,
	// e.g. `m::g::<i32>::{{closure}}`.
	Full string `json:"full"`
	// Generics are the stripped generic argument lists in order.
	Generics []string `json:"generics,omitempty"`
	// Synthetic is set when trailing closure or shim segments were dropped.
	Synthetic bool `json:"synthetic,omitempty"`
}

var (
	hashSuffixRe     = regexp.MustCompile(`::h[0-9a-f]{16}$`)
	// A crate disambiguator follows an identifier directly; a slice
	// generic such as `<[f32]>` does not.
	disambiguatorRe  = regexp.MustCompile(`([A-Za-z0-9_])\[[0-9a-f]+\]`)
	llvmSuffixRe     = regexp.MustCompile(`(\.llvm\.\d+|\.\d+)+$`)
	syntheticSegment = regexp.MustCompile(`^\{.*\}$`)
)

// Normalize turns a raw compiled symbol or a source path into a Symbol.
func Normalize(label string) Symbol {
	s := strings.TrimSpace(label)
	s = llvmSuffixRe.ReplaceAllString(s, "")
	s = demangleLabel(s)
	s = hashSuffixRe.ReplaceAllString(s, "")
	s = disambiguatorRe.ReplaceAllString(s, "${1}")
	s = llvmSuffixRe.ReplaceAllString(s, "")
	s = stripQualifiedSelf(s)

	sym := Symbol{Full: s}
	base, generics := splitGenerics(s)
	sym.Generics = generics

	segments := splitPath(base)
	for len(segments) > 1 && syntheticSegment.MatchString(segments[len(segments)-1]) {
		segments = segments[:len(segments)-1]
		sym.Synthetic = true
	}
	sym.Base = strings.Join(segments, "::")
	return sym
}

// NormalizeFinding normalises a source-level qualified path, dropping the
// `<_>` placeholders the scanner writes for impl generics.
func NormalizeFinding(path string) Symbol {
	return Normalize(path)
}

func demangleLabel(s string) string {
	if !strings.HasPrefix(s, "_ZN") && !strings.HasPrefix(s, "_R") &&
		!strings.HasPrefix(s, "__ZN") && !strings.HasPrefix(s, "__R") {
		return s
	}
	out, err := demangle.ToString(s, demangle.NoParams)
	if err != nil {
		var ok bool
		if out, ok = splitLegacy(s); !ok {
			return s
		}
	}
	// Legacy Rust symbols whose hash does not look random come back from
	// the demangler as plain Itanium names with the `$..$` escapes intact.
	return decodeLegacyEscapes(out)
}

// splitLegacy joins the length-prefixed identifiers of an `_ZN...E` symbol.
func splitLegacy(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "_ZN"):
		s = s[3:]
	case strings.HasPrefix(s, "__ZN"):
		s = s[4:]
	default:
		return "", false
	}
	var parts []string
	for s != "" && s[0] != 'E' {
		n := 0
		for n < len(s) && s[n] >= '0' && s[n] <= '9' {
			n++
		}
		size, err := strconv.Atoi(s[:n])
		if err != nil || size <= 0 || n+size > len(s) {
			return "", false
		}
		parts = append(parts, s[n:n+size])
		s = s[n+size:]
	}
	if s != "E" || len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "::"), true
}

var legacyEscapes = map[string]string{
	"SP": "@",
	"BP": "*",
	"RF": "&",
	"LT": "<",
	"GT": ">",
	"LP": "(",
	"RP": ")",
	"C":  ",",
}

// decodeLegacyEscapes rewrites `$LT$`, `$u20$` and `..` inside the path
// segments that still carry legacy escapes.
func decodeLegacyEscapes(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	segments := strings.Split(s, "::")
	for i, seg := range segments {
		if !strings.Contains(seg, "$") {
			continue
		}
		if strings.HasPrefix(seg, "_$") {
			seg = seg[1:]
		}
		segments[i] = strings.ReplaceAll(decodeDollars(seg), "..", "::")
	}
	return strings.Join(segments, "::")
}

func decodeDollars(seg string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(seg, '$')
		if open < 0 {
			break
		}
		end := strings.IndexByte(seg[open+1:], '$')
		if end < 0 {
			break
		}
		code := seg[open+1 : open+1+end]
		b.WriteString(seg[:open])
		if r, ok := legacyEscapes[code]; ok {
			b.WriteString(r)
		} else if v, err := strconv.ParseUint(strings.TrimPrefix(code, "u"), 16, 32); err == nil && strings.HasPrefix(code, "u") {
			b.WriteRune(rune(v))
		} else {
			b.WriteString(seg[open : open+end+2])
		}
		seg = seg[open+end+2:]
	}
	b.WriteString(seg)
	return b.String()
}

// stripQualifiedSelf rewrites `<A as T>::f` to `A::f` and `<A>::f` to
// `A::f`, recursively for nested qualified selves.
func stripQualifiedSelf(s string) string {
	if !strings.HasPrefix(s, "<") {
		return s
	}
	end := matchingAngle(s, 0)
	if end < 0 {
		return s
	}
	inner := s[1:end]
	if i := topLevelIndex(inner, " as "); i >= 0 {
		inner = inner[:i]
	}
	inner = stripQualifiedSelf(stripPointerPrefix(strings.TrimSpace(inner)))
	return inner + s[end+1:]
}

var pointerPrefixes = []string{"&mut ", "&", "*const ", "*mut ", "dyn "}

// stripPointerPrefix reduces `&mut foo::S` and friends to `foo::S`.
func stripPointerPrefix(s string) string {
	for changed := true; changed; {
		changed = false
		for _, p := range pointerPrefixes {
			if strings.HasPrefix(s, p) {
				s = strings.TrimSpace(strings.TrimPrefix(s, p))
				changed = true
			}
		}
	}
	return s
}

// matchingAngle returns the index of the '>' closing the '<' at open.
// The '>' of `->` does not close.
func matchingAngle(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// topLevelIndex finds sep outside any angle, paren or square brackets.
func topLevelIndex(s, sep string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>':
			if i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
		case ')', ']':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			return i
		}
	}
	return -1
}

// splitGenerics removes every top-level generic argument list, including
// turbofish `::<...>` forms, returning the remaining path and the lists.
func splitGenerics(s string) (string, []string) {
	var b strings.Builder
	var generics []string
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			b.WriteByte(s[i])
			continue
		}
		end := matchingAngle(s, i)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		generics = append(generics, s[i:end+1])
		out := b.String()
		if strings.HasSuffix(out, "::") {
			b.Reset()
			b.WriteString(strings.TrimSuffix(out, "::"))
		}
		i = end
	}
	return b.String(), generics
}

// splitPath splits a path on `::` outside braces.
func splitPath(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ':':
			if depth == 0 && i+1 < len(s) && s[i+1] == ':' {
				parts = append(parts, s[start:i])
				start = i + 2
				i++
			}
		}
	}
	return append(parts, s[start:])
}
