package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(name string) (string, bool)

// Interpolate expands ${VAR}, ${VAR:-default} and $VAR in s, and a leading
// "~/" to the home directory. A braced variable that is unset or empty takes
// its default; without a default it is an error. An unset $VAR is kept as
// written.
func Interpolate(s string, lookup LookupFunc) (string, error) {
	if strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, s[2:])
		}
	}
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 == len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			ref := s[i+2 : i+end]
			name, def, hasDefault := strings.Cut(ref, ":-")
			if !validName(name) {
				return "", fmt.Errorf("invalid variable reference ${%s}", ref)
			}
			switch v, ok := lookup(name); {
			case ok && v != "":
				b.WriteString(v)
			case hasDefault:
				b.WriteString(def)
			default:
				return "", fmt.Errorf("environment variable %q is not set", name)
			}
			i += end + 1
			continue
		}
		n := nameLen(s[i+1:])
		if n == 0 {
			b.WriteByte('$')
			i++
			continue
		}
		name := s[i+1 : i+1+n]
		if v, ok := lookup(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+1+n])
		}
		i += 1 + n
	}
	return b.String(), nil
}

func nameLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		alpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !alpha && (i == 0 || c < '0' || c > '9') {
			return i
		}
	}
	return len(s)
}

func validName(s string) bool { return s != "" && nameLen(s) == len(s) }

// interpolateNode rewrites every string scalar under n in place.
func interpolateNode(n *yaml.Node, lookup LookupFunc) error {
	switch n.Kind {
	case yaml.ScalarNode:
		v, err := Interpolate(n.Value, lookup)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		if v != n.Value {
			n.Value = v
			if n.Style == 0 {
				// Let "${N}" resolve as a number or bool after expansion.
				n.Tag = ""
			}
		}
	case yaml.MappingNode:
		// Keys are not interpolated.
		for i := 1; i < len(n.Content); i += 2 {
			if err := interpolateNode(n.Content[i], lookup); err != nil {
				return err
			}
		}
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := interpolateNode(c, lookup); err != nil {
				return err
			}
		}
	}
	return nil
}
