package condition

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

var refExpr = regexp.MustCompile(`^([A-Za-z0-9_]+)(?:\[(\d+)\])?$`)

func parseRef(ref string) (name string, index int, hasIndex bool, ok bool) {
	m := refExpr.FindStringSubmatch(ref)
	if m == nil {
		return "", 0, false, false
	}
	name = m[1]
	if m[2] == "" {
		return name, 0, false, true
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false, false
	}
	return name, idx, true, true
}

func rawLookup(name string, ctx Context) (interface{}, bool) {
	if name == "num_extruders" {
		return numExtruders(ctx), true
	}
	if v, ok := ctx.Config[name]; ok {
		return v, true
	}
	if ctx.Defaults != nil {
		if v, ok := ctx.Defaults[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func numExtruders(ctx Context) interface{} {
	if v, ok := ctx.Config["extruders_count"]; ok {
		return v
	}
	if ctx.Defaults != nil {
		if v, ok := ctx.Defaults["extruders_count"]; ok {
			return v
		}
	}
	raw, ok := rawLookup("nozzle_diameter", ctx)
	if !ok {
		return float64(0)
	}
	switch t := raw.(type) {
	case []interface{}:
		return float64(len(t))
	case string:
		return float64(len(splitListString(t)))
	default:
		return float64(1)
	}
}

func splitListString(s string) []string {
	return regexp.MustCompile(`[;,]`).Split(s, -1)
}

// lookup resolves a variable reference (with optional [index]) against the
// context, applying the slicer-specific list/string conventions of
// spec.md §4.G.
func lookup(ref string, ctx Context) (interface{}, bool) {
	name, index, hasIndex, ok := parseRef(ref)
	if !ok {
		return nil, false
	}

	raw, ok := rawLookup(name, ctx)
	if !ok {
		return nil, false
	}

	if !hasIndex {
		if ctx.Slicer != slicer.PrusaSlicer {
			if list, ok := raw.([]interface{}); ok && len(list) == 1 {
				return list[0], true
			}
		}
		return raw, true
	}

	if ctx.Slicer == slicer.PrusaSlicer {
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		parts := splitListString(s)
		if index < 0 || index >= len(parts) {
			return nil, false
		}
		return strings.TrimSpace(parts[index]), true
	}

	switch t := raw.(type) {
	case []interface{}:
		if index < 0 || index >= len(t) {
			return nil, false
		}
		return t[index], true
	case string:
		parts := splitListString(t)
		if index < 0 || index >= len(parts) {
			return nil, false
		}
		return strings.TrimSpace(parts[index]), true
	default:
		if index == 0 {
			return raw, true
		}
		return nil, false
	}
}
