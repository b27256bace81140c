package matching

import (
	"regexp"
	"strings"
)

var (
	mmuRe         = regexp.MustCompile(`mmu[0-9]s?`)
	bedSizeRe     = regexp.MustCompile(`[0-9]+mm3?`)
	voronVersionMatchRe = regexp.MustCompile(`^v([0-9])`)
	voronVersionSubRe   = regexp.MustCompile(`v([0-9])`)
	trailingBedRe = regexp.MustCompile(` [0-9]{3,}$`)
	ratrigDashRe  = regexp.MustCompile(`-([0-9])`)
	ratrig3xRe    = regexp.MustCompile(`3\.[0-9]`)
	ratrig4xRe    = regexp.MustCompile(`4\.[0-9]`)
	ratrigMMRe    = regexp.MustCompile(`([0-9])mm`)
)

// algorithm is one of the thirteen name-normalization attempts; spName is
// the catalogue model name (brand already stripped), slicerName is the
// printer name from the slicer profile (brand already stripped), brand is
// the catalogue-normalized brand.
type algorithm func(spName, slicerName, brand string) bool

// Algorithms lists the thirteen matching algorithms in the fixed order
// spec.md §4.I requires them tried.
var Algorithms = []algorithm{
	directComparison,
	removeDashes,
	removeSpaces,
	removeParentheses,
	removeBltouch,
	removeMMU,
	removeInputShaper,
	removeBedSize,
	voronVersionConvert,
	prusaSplitModelNames,
	sovolSplitModelNames,
	ratrigVCore,
	alternateRemoveBedSize,
}

func directComparison(sp, s, _ string) bool {
	return sp == s
}

func removeDashes(sp, s, _ string) bool {
	return strings.ReplaceAll(sp, "-", " ") == strings.ReplaceAll(s, "-", " ")
}

func removeSpaces(sp, s, _ string) bool {
	return strings.ReplaceAll(sp, " ", "") == strings.ReplaceAll(s, " ", "")
}

var parenGroupRe = regexp.MustCompile(`\s*\([^()]*\)`)

func removeParentheses(sp, s, _ string) bool {
	strip := func(x string) string {
		return strings.TrimSpace(parenGroupRe.ReplaceAllString(x, ""))
	}
	return strip(sp) == strip(s)
}

func removeBltouch(sp, s, _ string) bool {
	return sp == strings.TrimSpace(strings.ReplaceAll(s, "bltouch", ""))
}

func removeMMU(sp, s, _ string) bool {
	return sp == strings.TrimSpace(mmuRe.ReplaceAllString(s, ""))
}

func removeInputShaper(sp, s, _ string) bool {
	return sp == strings.TrimSpace(strings.ReplaceAll(s, "input shaper", ""))
}

func removeBedSize(sp, s, _ string) bool {
	return sp == strings.TrimSpace(bedSizeRe.ReplaceAllString(s, ""))
}

func voronVersionConvert(sp, s, brand string) bool {
	if brand != "voron" {
		return false
	}
	s = strings.TrimSpace(bedSizeRe.ReplaceAllString(s, ""))
	s = strings.ReplaceAll(s, "zero", "v0")
	m := voronVersionMatchRe.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	verNum := m[1]
	if verNum == "1" {
		verNum = "v" + verNum
	}
	s = voronVersionSubRe.ReplaceAllString(s, verNum+".x")
	return strings.TrimSpace(strings.ReplaceAll(sp, "voron", "")) == s
}

func prusaSplitModelNames(sp, s, brand string) bool {
	if brand != "prusa" || !strings.Contains(s, "&&") {
		return false
	}
	isI3 := strings.HasPrefix(s, "i3")
	if isI3 {
		s = strings.TrimSpace(strings.TrimPrefix(s, "i3"))
	}
	s = strings.TrimSpace(mmuRe.ReplaceAllString(s, ""))
	s = strings.TrimSpace(strings.ReplaceAll(s, "input shaper", ""))
	for _, part := range strings.Split(s, "&&") {
		candidate := strings.TrimSpace(part)
		if isI3 {
			candidate = "i3 " + candidate
		}
		if sp == candidate {
			return true
		}
	}
	return false
}

func sovolSplitModelNames(sp, s, brand string) bool {
	if brand != "sovol" || !strings.Contains(s, "/") {
		return false
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, "bltouch", ""))
	for _, part := range strings.Split(s, "/") {
		if sp == strings.TrimSpace(part) {
			return true
		}
	}
	return false
}

func ratrigVCore(sp, s, brand string) bool {
	if brand != "rat rig" || !strings.HasPrefix(s, "v-core") {
		return false
	}
	sp = strings.ReplaceAll(sp, "(", "")
	sp = strings.ReplaceAll(sp, ")", "")
	s = strings.ReplaceAll(s, "corexy ", "")
	s = strings.ReplaceAll(s, "hybrid ", "")
	s = ratrigDashRe.ReplaceAllString(s, " $1")
	s = ratrig3xRe.ReplaceAllString(s, "3")
	s = ratrig4xRe.ReplaceAllString(s, "4")
	sp = ratrig4xRe.ReplaceAllString(sp, "4")
	s = ratrigMMRe.ReplaceAllString(s, "$1")
	sp = ratrigMMRe.ReplaceAllString(sp, "$1")
	s = strings.ReplaceAll(s, " copy mode", "")
	s = strings.ReplaceAll(s, " mirror mode", "")
	return sp == s
}

func alternateRemoveBedSize(sp, s, _ string) bool {
	return sp == trailingBedRe.ReplaceAllString(s, "")
}
