// Package decl scans shader source for uniform and attribute declarations.
//
// Only a minimal line grammar is understood. A line declares a uniform when,
// after trimming leading whitespace and splitting on whitespace, its first
// token is "uniform". An optional precision qualifier (lowp, mediump, highp)
// may follow, then the type, then one or more comma-separated names
// terminated by ';'. A name may carry an array suffix. Lines that start with
// "uniform" but do not fit the grammar are returned as malformed
// declarations rather than skipped. Scanning stops
// at the first line whose first token is "void", which is taken to be the
// entry point; uniforms declared after it are ignored.
//
// Everything else about the shader language is opaque to this package.
package decl

import (
	"regexp"
	"strings"
)

// Decl is one recognised declaration.
type Decl struct {
	// Name is the identifier with the trailing ';' stripped.
	Name string

	// Type is the declared type token, e.g. "float" or "sampler2D".
	Type string

	// Precision is the precision qualifier, or "" if none was given.
	Precision string

	// Line is the 1-based source line of the declaration.
	Line int

	// Array is set when the name carries an array suffix such as "[4]".
	Array bool

	// Malformed is set when the line could not be parsed. Name and Type
	// hold whatever could be recovered and may be empty.
	Malformed bool
}

// Source is the result of scanning one shader.
type Source struct {
	// Uniforms lists uniform declarations in source order.
	Uniforms []Decl

	// Attributes lists vertex attribute declarations ("attribute" lines,
	// same grammar) in source order.
	Attributes []Decl

	// Body is the text from the entry-point line to the end of the source.
	// It is empty when no "void" line was found.
	Body string

	// BodyLine is the 1-based line number where Body starts, or 0.
	BodyLine int
}

var precisions = map[string]bool{
	"lowp":    true,
	"mediump": true,
	"highp":   true,
}

// Scan extracts uniform declarations from src.
func Scan(src string) Source {
	var out Source
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		if words[0] == "void" {
			out.Body = strings.Join(lines[i:], "\n")
			out.BodyLine = i + 1
			return out
		}
		if words[0] != "uniform" && words[0] != "attribute" {
			continue
		}
		decls := parseDecl(strings.Fields(StripComments(line))[1:])
		for j := range decls {
			decls[j].Line = i + 1
		}
		if words[0] == "uniform" {
			out.Uniforms = append(out.Uniforms, decls...)
		} else {
			out.Attributes = append(out.Attributes, decls...)
		}
	}
	return out
}

// parseDecl parses the words after the storage qualifier into one Decl per
// declarator.
func parseDecl(words []string) []Decl {
	var base Decl
	if len(words) > 0 && precisions[words[0]] {
		base.Precision = words[0]
		words = words[1:]
	}
	if len(words) == 0 || strings.ContainsAny(words[0], ";,[") {
		base.Malformed = true
		return []Decl{base}
	}
	base.Type = words[0]
	rest, ok := strings.CutSuffix(strings.TrimSpace(strings.Join(words[1:], " ")), ";")
	if !ok || strings.Contains(rest, ";") {
		base.Malformed = true
		base.Name = leadingIdent(rest)
		return []Decl{base}
	}
	var out []Decl
	for _, part := range strings.Split(rest, ",") {
		d := base
		d.Name, d.Array, ok = parseDeclarator(strings.TrimSpace(part))
		d.Malformed = !ok
		out = append(out, d)
	}
	return out
}

var arrayRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\[[^\]]*\]$`)

// parseDeclarator parses "name" or "name[size]".
func parseDeclarator(s string) (name string, array, ok bool) {
	if isIdent(s) {
		return s, false, true
	}
	if m := arrayRe.FindStringSubmatch(s); m != nil {
		return m[1], true, true
	}
	return leadingIdent(s), false, false
}

func leadingIdent(s string) string {
	loc := identRe.FindStringIndex(s)
	if loc == nil || loc[0] != 0 {
		return ""
	}
	return s[:loc[1]]
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

func isIdent(s string) bool {
	loc := identRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Identifiers returns the set of identifiers that occur in text.
// Line comments and block comments are skipped.
func Identifiers(text string) map[string]bool {
	text = StripComments(text)
	ids := make(map[string]bool)
	for _, id := range identRe.FindAllString(text, -1) {
		ids[id] = true
	}
	return ids
}

// StripComments replaces comments in s with nothing (line comments) or a
// single space (block comments). Newlines ending line comments are kept.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "//"):
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				return b.String()
			}
			i += j - 1
		case strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += j + 3
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
