package analyzer

import (
	"strings"
	"unicode"
)

// Filter keeps the identifiers allowed by opts: the package prefix filter,
// stdlib and unexported exclusion.
func Filter(identifiers []string, opts Options) []string {
	filtered := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		pkgPath, name := splitIdentifier(id)

		if !opts.IncludeStdlib && isStdlib(pkgPath) {
			continue
		}
		if !opts.IncludeUnexported && isUnexported(name) {
			continue
		}
		if opts.Filter != "" && !strings.HasPrefix(pkgPath, opts.Filter) {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

func isStdlib(pkgPath string) bool {
	// Stdlib packages have no dot in the first path element
	firstSlash := strings.IndexByte(pkgPath, '/')
	firstPart := pkgPath
	if firstSlash >= 0 {
		firstPart = pkgPath[:firstSlash]
	}
	return !strings.Contains(firstPart, ".")
}

func isUnexported(name string) bool {
	if name == "" {
		return true
	}
	// Built-in types like 'error' are lowercase but considered exported
	if name == "error" {
		return false
	}
	return unicode.IsLower(rune(name[0]))
}

// isInternal reports whether pkgPath lies under an internal/ directory.
func isInternal(pkgPath string) bool {
	return pkgPath == "internal" ||
		strings.HasPrefix(pkgPath, "internal/") ||
		strings.HasSuffix(pkgPath, "/internal") ||
		strings.Contains(pkgPath, "/internal/")
}
