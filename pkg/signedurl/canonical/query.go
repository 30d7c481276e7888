package canonical

import (
	"sort"
	"strings"
)

// Param is a single query parameter. Key and Value are stored exactly as
// they will appear in the URL; callers encode before adding.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered list of already-encoded query parameters.
type Query []Param

// EncodedParams encodes every key and value of m with EncodeComponent. The
// result is sorted by encoded key so that map iteration order never leaks
// into a signature.
func EncodedParams(m map[string]string) Query {
	q := make(Query, 0, len(m))
	for k, v := range m {
		q = append(q, Param{Key: EncodeComponent(k), Value: EncodeComponent(v)})
	}
	q.Sort()
	return q
}

// Sort orders the parameters by key in byte order. Equal keys keep their
// relative order.
func (q Query) Sort() {
	sort.SliceStable(q, func(i, j int) bool { return q[i].Key < q[j].Key })
}

// Set replaces the value of the first parameter named key, or appends a new
// parameter when none exists.
func (q Query) Set(key, value string) Query {
	for i := range q {
		if q[i].Key == key {
			q[i].Value = value
			return q
		}
	}
	return append(q, Param{Key: key, Value: value})
}

// Encode joins the parameters as key=value pairs separated by '&'.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}
