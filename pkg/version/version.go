// Package version implements the non-semver version ordering that every
// slicer's release tags are compared under: arbitrary separator splitting,
// non-numeric parts coercing to zero, and a small set of special-cased
// mutable branch names.
//
// Neither Masterminds/semver nor hashicorp/go-version accept this input
// shape (branch names, four-and-five-part dotted strings, bare numbers
// with no leading "v"), so this is implemented directly on strings/strconv
// rather than forced through a semver parser.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingV       = regexp.MustCompile(`^(v|version_)`)
	splitOn        = regexp.MustCompile(`[._-]`)
	preReleaseExpr = regexp.MustCompile(`(?i)alpha|beta|rc|dev|pre`)
)

// mutableNames are normalized version strings that always re-ingest
// because they name a moving branch rather than a fixed release.
var mutableNames = map[string]bool{
	"main":    true,
	"master":  true,
	"develop": true,
	"dev":     true,
}

// Normalize strips a leading "v" or "version_" and trims surrounding
// whitespace.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingV.ReplaceAllString(s, "")
	return s
}

// Key is the ordered tuple a normalized version compares by.
type Key []int

// KeyOf splits the normalized version on any of '.', '-', '_' and converts
// each part to an integer, with non-integer parts becoming zero.
func KeyOf(raw string) Key {
	norm := Normalize(raw)
	parts := splitOn.Split(norm, -1)
	key := make(Key, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = 0
		}
		key = append(key, n)
	}
	return key
}

// Compare returns -1, 0, or 1 as a's key is less than, equal to, or
// greater than b's key, using lexicographic tuple comparison with missing
// trailing components treated as zero.
func Compare(a, b string) int {
	ka, kb := KeyOf(a), KeyOf(b)
	n := len(ka)
	if len(kb) > n {
		n = len(kb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(ka) {
			x = ka[i]
		}
		if i < len(kb) {
			y = kb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessOrEqual reports whether a <= b under Compare.
func LessOrEqual(a, b string) bool {
	return Compare(a, b) <= 0
}

// IsPreRelease reports whether the version matches alpha|beta|rc|dev|pre
// case-insensitively.
func IsPreRelease(raw string) bool {
	return preReleaseExpr.MatchString(raw)
}

// IsMutable reports whether the version is one of main/master/develop/dev
// after normalization, or begins with "nightly". Mutable versions are
// always re-ingested even if already present in the store.
func IsMutable(raw string) bool {
	norm := strings.ToLower(Normalize(raw))
	if mutableNames[norm] {
		return true
	}
	return strings.HasPrefix(norm, "nightly")
}

// Sort orders versions ascending under Compare. The sort is stable: equal
// keys preserve their relative input order.
func Sort(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	sortStable(out)
	return out
}

func sortStable(vs []string) {
	// Simple stable insertion-based merge via sort.SliceStable equivalent,
	// written out directly to keep this package's only dependency on
	// strings/strconv/regexp as stated.
	for i := 1; i < len(vs); i++ {
		j := i
		for j > 0 && Compare(vs[j-1], vs[j]) > 0 {
			vs[j-1], vs[j] = vs[j], vs[j-1]
			j--
		}
	}
}

// Max returns the greatest version in versions under Compare, or "" if
// versions is empty.
func Max(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
