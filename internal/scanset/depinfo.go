package scanset

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// DepInfo is a parsed make-style dependency file as written by rustc.
type DepInfo struct {
	// Targets are the outputs named on the left of each rule.
	Targets []string
	// Files are every prerequisite in first-seen order, deduplicated.
	Files []string
	// Env holds `# env-dep:NAME=value` records.
	Env map[string]string
}

// ReadDepInfo parses the dep-info file at path.
func ReadDepInfo(path string) (*DepInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseDepInfo(f)
}

// ParseDepInfo parses make-style dependency rules. It handles backslash line
// continuations, escaped spaces in paths and several rules per file.
func ParseDepInfo(r io.Reader) (*DepInfo, error) {
	info := &DepInfo{Env: map[string]string{}}
	seenFile := map[string]bool{}
	seenTarget := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var logical strings.Builder
	flush := func() {
		line := logical.String()
		logical.Reset()
		targets, prereqs, ok := splitRule(line)
		if !ok {
			return
		}
		for _, t := range targets {
			if !seenTarget[t] {
				seenTarget[t] = true
				info.Targets = append(info.Targets, t)
			}
		}
		for _, p := range prereqs {
			if !seenFile[p] {
				seenFile[p] = true
				info.Files = append(info.Files, p)
			}
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if logical.Len() == 0 && strings.HasPrefix(line, "#") {
			if rest, ok := strings.CutPrefix(line, "# env-dep:"); ok {
				name, value, _ := strings.Cut(rest, "=")
				info.Env[name] = value
			}
			continue
		}

		if continued(line) {
			logical.WriteString(line[:len(line)-1])
			logical.WriteByte(' ')
			continue
		}
		logical.WriteString(line)
		flush()
	}
	if logical.Len() > 0 {
		flush()
	}
	return info, scanner.Err()
}

// continued reports whether line ends in an unescaped backslash.
func continued(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitRule splits `targets: prereqs`. The separator is the first colon
// followed by whitespace or end of line, so Windows drive letters survive.
func splitRule(line string) (targets, prereqs []string, ok bool) {
	if strings.TrimSpace(line) == "" {
		return nil, nil, false
	}
	sep := -1
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' {
			i++
			continue
		}
		if line[i] == ':' && (i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t') {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, nil, false
	}
	return splitWords(line[:sep]), splitWords(line[sep+1:]), true
}

// splitWords splits on unescaped whitespace and unescapes `\ `, `\#`, `\:`
// and `$$`.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '#' || s[i+1] == ':' || s[i+1] == '\\'):
			cur.WriteByte(s[i+1])
			i++
		case c == '$' && i+1 < len(s) && s[i+1] == '$':
			cur.WriteByte('$')
			i++
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}
