package policy

import (
	"path"
	"strings"
)

// MatchGlob reports whether a slash-separated key matches pattern.
//
// Segments use path.Match syntax. A "**" segment matches zero or more
// whole segments. A pattern without a slash matches the key's base name
// at any depth, so "*.gen.ts" covers generated files everywhere.
// A malformed pattern never matches.
func MatchGlob(pattern, key string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	if !strings.Contains(pattern, "/") {
		ok, err := path.Match(pattern, path.Base(key))
		return err == nil && ok
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(key, "/"))
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], name[0])
		if err != nil || !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}
