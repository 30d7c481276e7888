package canonical

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Header is a single canonical header: lower-cased name, normalized value.
type Header struct {
	Name  string
	Value string
}

// Headers is a list of canonical headers sorted by name.
type Headers []Header

// CanonicalizeHeaders lower-cases the names in h, normalizes every value and
// sorts the result by name in byte order. Names that collide after
// lower-casing keep the value of the lexically greatest original name.
func CanonicalizeHeaders(h map[string]string) Headers {
	if len(h) == 0 {
		return Headers{}
	}

	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	byName := make(map[string]string, len(h))
	for _, name := range names {
		byName[strings.ToLower(name)] = h[name]
	}

	out := make(Headers, 0, len(byName))
	for name, value := range byName {
		out = append(out, Header{Name: name, Value: NormalizeHeaderValue(value)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Block renders the headers as "name:value\n" lines.
func (hs Headers) Block() string {
	var b strings.Builder
	for _, h := range hs {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	return b.String()
}

// Names returns the header names joined with ';'.
func (hs Headers) Names() string {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.Name
	}
	return strings.Join(names, ";")
}

// Get returns the value of the header with the given lower-case name.
func (hs Headers) Get(name string) (string, bool) {
	for _, h := range hs {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// NormalizeHeaderValue trims v and collapses every run of two or more
// whitespace characters into one space. A lone tab or newline inside the
// value is left alone.
func NormalizeHeaderValue(v string) string {
	v = strings.TrimFunc(v, isSpace)

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); {
		r, size := utf8.DecodeRuneInString(v[i:])
		if !isSpace(r) {
			b.WriteString(v[i : i+size])
			i += size
			continue
		}
		j, run := i, 0
		for j < len(v) {
			r, size = utf8.DecodeRuneInString(v[j:])
			if !isSpace(r) {
				break
			}
			j += size
			run++
		}
		if run >= 2 {
			b.WriteByte(' ')
		} else {
			b.WriteString(v[i:j])
		}
		i = j
	}
	return b.String()
}

// isSpace matches the ECMAScript \s class, which is what the verifier's
// reference canonicalization uses. It differs from unicode.IsSpace on U+0085
// and U+FEFF.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}
