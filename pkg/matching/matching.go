package matching

import (
	"regexp"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/catalogue"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// Match runs the full §4.I pipeline: brand translation, brand-prefix
// strip, then the thirteen algorithms against every catalogue model of
// the matched brand, plus the slicerProfileNames synonym fallback.
// vendor and printerName are the slicer's raw, un-normalized strings.
func Match(cat *catalogue.Catalogue, slicerType slicer.Type, vendor, printerName string) map[int]bool {
	ids := map[int]bool{}

	printerName = strings.ToLower(strings.TrimSpace(printerName))
	brand := strings.ToLower(vendor)

	var originalBrand string
	if mapped, ok := BrandMap(slicerType)[brand]; ok {
		originalBrand = brand
		brand = mapped
	}

	if !cat.HasBrand(brand) {
		return ids
	}

	printerName = StripBrandFromName(printerName, brand, originalBrand)

	models := cat.ModelsByBrand(brand)
	for _, model := range models {
		modelName := stripBrandFromModelName(model.Name, brand, originalBrand)
		for _, algo := range Algorithms {
			if algo(modelName, printerName, brand) {
				ids[model.ID] = true
				break
			}
		}
	}

	for _, model := range models {
		for _, synonym := range model.SlicerProfileNames {
			cleaned := stripBrandFromModelName(strings.ToLower(synonym), brand, originalBrand)
			if printerName == cleaned {
				ids[model.ID] = true
			}
		}
	}

	return ids
}

// stripBrandFromModelName removes every occurrence of brand (and,
// separately, originalBrand when distinct) from name, mirroring the
// reference's combined regexp-OR substitution.
func stripBrandFromModelName(name, brand, originalBrand string) string {
	if !strings.Contains(name, brand) && !(originalBrand != "" && strings.Contains(name, originalBrand)) {
		return name
	}
	pattern := regexp.QuoteMeta(brand)
	if originalBrand != "" {
		pattern += "|" + regexp.QuoteMeta(originalBrand)
	}
	re := regexp.MustCompile(pattern)
	return strings.TrimSpace(re.ReplaceAllString(name, ""))
}

// MatchIDs returns the matched ids as a sorted slice, convenient for
// deterministic test assertions and JSON output.
func MatchIDs(cat *catalogue.Catalogue, slicerType slicer.Type, vendor, printerName string) []int {
	set := Match(cat, slicerType, vendor, printerName)
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortInts(out)
	return out
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
