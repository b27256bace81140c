// Package parsers translates each slicer's native format into the
// uniform profile.ParsedProfile, per spec.md §4.D. Dispatch is by slicer
// variant — a tagged-variant dispatch over a closed, compile-time-known
// set, per the "Polymorphic parser dispatch" design note, not virtual
// method polymorphism.
package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/profile"
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// ParseDirectory dispatches to the parser appropriate for slicerType and
// yields every profile found under root, silently skipping files that
// fail to parse (spec.md §4.D: "silently skipping files that fail to
// parse").
func ParseDirectory(slicerType slicer.Type, root string) ([]profile.ParsedProfile, error) {
	switch {
	case slicerType.IsSlic3rJSON():
		return parseSlic3rJSONDirectory(slicerType, root)
	case slicerType.IsINIBundle():
		return parsePrusaFamilyDirectory(slicerType, root)
	case slicerType == slicer.Cura:
		return parseCuraDirectory(root)
	default:
		return nil, fmt.Errorf("parsers: unsupported slicer %s", slicerType)
	}
}

// walkFiles lists every file under root matching suffix, directory-sorted
// for deterministic emission order (spec.md §5: "emitted order is
// directory-sorted for determinism").
func walkFiles(root, suffix string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, suffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func readJSONMap(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toSettingsMap(raw map[string]interface{}, skip map[string]bool) map[string]profile.Value {
	out := make(map[string]profile.Value, len(raw))
	for k, v := range raw {
		if skip != nil && skip[k] {
			continue
		}
		out[k] = profile.NewValue(v)
	}
	return out
}

func stringField(raw map[string]interface{}, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		if len(t) == 1 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
