// Package env composes the environment handed to launched raw processes.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env layers shared variables over a base environment. It is not modified
// after construction, so one Env may serve concurrent launches.
type Env struct {
	Var  Var // shared overrides (K->V), applied to every launch
	base Var // snapshot of the supervisor's own environment
}

// New returns an Env whose shared overrides come from "K=V" pairs, based on
// a snapshot of the current process environment. Malformed pairs and empty
// keys are ignored.
func New(pairs []string) *Env {
	return &Env{Var: parse(pairs), base: parse(os.Environ())}
}

// WithBase replaces the base environment. Call it before the Env is shared.
func (e *Env) WithBase(pairs []string) *Env {
	e.base = parse(pairs)
	return e
}

// Merge composes base, then shared overrides, then perService overrides, and
// expands ${VAR} references against the composed map (one pass, no
// recursion). The result is sorted by key.
func (e *Env) Merge(perService []string) []string {
	m := make(Var, len(e.base)+len(e.Var)+len(perService))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Var {
		m[k] = v
	}
	for k, v := range parse(perService) {
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// expand replaces ${NAME} with its value; unknown names expand to "".
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+j]])
		s = s[i+j+1:]
	}
}
