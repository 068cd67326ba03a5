package impact

import "strings"

// Access markers attached to declarations by the lexical matchers. The
// visibility resolver maps them to public or internal signals.
const (
	MarkerExport         = "export"
	MarkerExported       = "exported"
	MarkerPublic         = "public"
	MarkerPub            = "pub"
	MarkerRoute          = "route"
	MarkerUnexported     = "unexported"
	MarkerNoExport       = "no-export"
	MarkerPrivate        = "private"
	MarkerProtected      = "protected"
	MarkerInternal       = "internal"
	MarkerFilePrivate    = "fileprivate"
	MarkerPubCrate       = "pub(crate)"
	MarkerNoPub          = "no-pub"
	MarkerUnderscore     = "underscore"
	MarkerPackagePrivate = "package-private"
)

// IsPublicMarker reports whether the marker is a strong public signal
func IsPublicMarker(m string) bool {
	switch m {
	case MarkerExport, MarkerExported, MarkerPublic, MarkerPub, MarkerRoute:
		return true
	}
	return false
}

// IsInternalMarker reports whether the marker explicitly hides a declaration
func IsInternalMarker(m string) bool {
	switch m {
	case MarkerUnexported, MarkerNoExport, MarkerPrivate, MarkerProtected, MarkerInternal,
		MarkerFilePrivate, MarkerPubCrate, MarkerNoPub, MarkerUnderscore, MarkerPackagePrivate:
		return true
	}
	return false
}

// IsTokenByte reports whether b can be part of an identifier token
func IsTokenByte(b byte) bool {
	return b == '_' || b == '$' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ContainsToken reports whether token occurs in line with non-identifier
// characters (or line edges) on both sides. Matching is case-sensitive.
func ContainsToken(line, token string) bool {
	if token == "" {
		return false
	}
	for start := 0; start <= len(line)-len(token); {
		i := strings.Index(line[start:], token)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(token)
		before := i == 0 || !IsTokenByte(line[i-1]) || !IsTokenByte(token[0])
		after := end == len(line) || !IsTokenByte(line[end]) || !IsTokenByte(token[len(token)-1])
		if before && after {
			return true
		}
		start = i + 1
	}
	return false
}
