package utils

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// BlockID mints an id of the shape "<slug>-<hex8>". The slug keeps ids
// readable in dependency lists and logs; the uuid-derived suffix keeps
// them unique across the project.
func BlockID(name string) string {
	slug := slugifyASCII(name)
	if slug == "" {
		slug = "block"
	}
	if len(slug) > 32 {
		slug = strings.Trim(slug[:32], "-")
	}
	return slug + "-" + uuid.NewString()[:8]
}

// HistoryID identifies one soft-delete snapshot.
func HistoryID() string {
	return "hist-" + uuid.NewString()
}

// RunID identifies one in-flight generation.
func RunID() string {
	return "gen-" + uuid.NewString()[:13]
}

func slugifyASCII(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
