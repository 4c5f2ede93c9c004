package blob

import (
	"strings"
)

// ParseURI splits an s3://bucket/key URI. ok is false for plain keys.
func ParseURI(s string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(s, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, strings.TrimLeft(key, "/"), true
}

// JoinKey places key under prefix unless it is already there. The check is
// case-insensitive.
func JoinKey(prefix, key string) string {
	p := strings.Trim(prefix, "/")
	k := strings.TrimLeft(key, "/")
	if p == "" {
		return k
	}
	if strings.HasPrefix(strings.ToLower(k), strings.ToLower(p)+"/") {
		return k
	}
	return p + "/" + k
}

// KeyCandidates lists the object keys a stored document may live under, in
// lookup order: with and without prefix, then the same for the key with
// underscores read as spaces and spaces read as underscores.
func KeyCandidates(prefix, key string) []string {
	base := strings.TrimLeft(key, "/")
	candidates := []string{JoinKey(prefix, base), base}

	if spaced := strings.ReplaceAll(base, "_", " "); spaced != base {
		candidates = append(candidates, JoinKey(prefix, spaced), spaced)
	}
	if underscored := strings.ReplaceAll(base, " ", "_"); underscored != base {
		candidates = append(candidates, JoinKey(prefix, underscored), underscored)
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// dirOf returns the "directory" part of key including the trailing slash.
func dirOf(key string) string {
	if i := strings.LastIndex(key, "/"); i > 0 {
		return key[:i+1]
	}
	return ""
}
