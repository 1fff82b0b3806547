package cache

import (
	"net/url"
	"sort"
	"strings"

	"github.com/interlock-api/interlock/internal/types"
)

// Key derives the deterministic cache key for a request: method, normalized
// path, sorted query parameters, and the values of any declared vary
// headers. Two requests that should share a cached response always derive
// the same key.
func Key(req *types.Request, vary []string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteByte('|')
	b.WriteString(req.Path)
	b.WriteByte('|')
	b.WriteString(canonicalQuery(req.Query))
	for _, name := range vary {
		b.WriteString("|h:")
		b.WriteString(strings.ToLower(name))
		b.WriteByte('=')
		b.WriteString(req.Header.Get(name))
	}
	return b.String()
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(q))
	for k, vs := range q {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.Join(parts, "&")
}
