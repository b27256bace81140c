// Package squash resolves inheritance and composition: INI-bundle
// splitting for PrusaSlicer/SuperSlicer (this file) and the slic3r-JSON
// include/inherits squasher (json.go), per spec.md §4.E.
package squash

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/slicer"
	"gopkg.in/ini.v1"
)

// Section is one INI-bundle section, tagged with its profile type and
// inheritance parents.
type Section struct {
	Type     slicer.ProfileType
	Name     string
	Abstract bool
	Inherits []string
	Settings map[string]string
}

var sectionPrefixes = map[string]slicer.ProfileType{
	"filament":      slicer.Filament,
	"printer_model": slicer.MachineModel,
	"printer":       slicer.Machine,
	"print":         slicer.Print,
}

// settingsIDKey names the key each profile type's flattened output
// carries holding the profile's own section name, per spec.md §4.E.
var settingsIDKey = map[slicer.ProfileType]string{
	slicer.Filament:     "filament_settings_id",
	slicer.Machine:      "printer_settings_id",
	slicer.Print:        "print_settings_id",
	slicer.MachineModel: "",
}

// ParseBundle tokenizes an INI bundle file into its sections. On an
// "unexpected value continuation" failure it retries once after
// stripping leading whitespace from every line, per spec.md §4.E's
// recovery step. If parsing still fails the bundle is skipped (nil, nil).
func ParseBundle(data []byte) ([]Section, error) {
	sections, err := tryParseBundle(data)
	if err == nil {
		return sections, nil
	}
	if !looksLikeContinuationError(err) {
		return nil, fmt.Errorf("squash: parse ini bundle: %w", err)
	}
	stripped := stripLeadingWhitespace(data)
	sections, err2 := tryParseBundle(stripped)
	if err2 != nil {
		return nil, nil
	}
	return sections, nil
}

func looksLikeContinuationError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "continuation")
}

func stripLeadingWhitespace(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimLeft(l, " \t")
	}
	return []byte(strings.Join(lines, "\n"))
}

func tryParseBundle(data []byte) ([]Section, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:    true,
		AllowNonUniqueSections: true,
		AllowShadows:           true,
	}, data)
	if err != nil {
		return nil, err
	}

	var out []Section
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		idx := strings.Index(name, ":")
		if idx < 0 {
			continue
		}
		prefix := name[:idx]
		pt, ok := sectionPrefixes[prefix]
		if !ok {
			continue
		}
		profileName := name[idx+1:]
		abstract := strings.HasPrefix(profileName, "*")
		if abstract {
			profileName = strings.TrimPrefix(profileName, "*")
		}

		settings := map[string]string{}
		var inherits []string
		for _, key := range sec.Keys() {
			if key.Name() == "inherits" {
				for _, parent := range strings.Split(key.Value(), ";") {
					parent = strings.TrimSpace(parent)
					if parent != "" {
						inherits = append(inherits, parent)
					}
				}
				continue
			}
			settings[key.Name()] = key.Value()
		}

		out = append(out, Section{
			Type:     pt,
			Name:     profileName,
			Abstract: abstract,
			Inherits: inherits,
			Settings: settings,
		})
	}
	return out, nil
}

type flattenState int

const (
	stateResolving flattenState = iota
	stateResolved
)

// FlattenBundle resolves every non-abstract section's inherits chain,
// applying each parent's settings before the child's own (so the child
// overrides), memoized across the single bundle pass. Abstract ("*"
// prefixed) sections are never emitted but remain available as
// resolvable parents. After flattening, "inherits" is absent and a
// settings-ID key is present holding the profile's own section name.
func FlattenBundle(sections []Section) (map[slicer.ProfileType]map[string]map[string]string, error) {
	byTypeAndName := map[slicer.ProfileType]map[string]Section{}
	for _, s := range sections {
		m, ok := byTypeAndName[s.Type]
		if !ok {
			m = map[string]Section{}
			byTypeAndName[s.Type] = m
		}
		m[s.Name] = s
	}

	resolved := map[slicer.ProfileType]map[string]map[string]string{}
	resolving := map[string]bool{}

	var resolve func(pt slicer.ProfileType, name string) (map[string]string, error)
	resolve = func(pt slicer.ProfileType, name string) (map[string]string, error) {
		key := string(pt) + "\x00" + name
		if resolving[key] {
			return nil, fmt.Errorf("squash: cyclic inherits at %s/%s", pt, name)
		}
		if m, ok := resolved[pt]; ok {
			if v, ok := m[name]; ok {
				return v, nil
			}
		}
		sec, ok := byTypeAndName[pt][name]
		if !ok {
			return nil, fmt.Errorf("squash: unresolved inherits target %s/%s", pt, name)
		}

		resolving[key] = true
		flat := map[string]string{}
		for _, parent := range sec.Inherits {
			parentFlat, err := resolve(pt, parent)
			if err != nil {
				delete(resolving, key)
				return nil, err
			}
			for k, v := range parentFlat {
				flat[k] = v
			}
		}
		for k, v := range sec.Settings {
			flat[k] = v
		}
		delete(resolving, key)

		if m, ok := resolved[pt]; ok {
			m[name] = flat
		} else {
			resolved[pt] = map[string]map[string]string{name: flat}
		}
		return flat, nil
	}

	out := map[slicer.ProfileType]map[string]map[string]string{}
	for _, s := range sections {
		if s.Abstract {
			continue
		}
		flat, err := resolve(s.Type, s.Name)
		if err != nil {
			continue
		}
		cloned := make(map[string]string, len(flat)+1)
		for k, v := range flat {
			if k == "inherits" {
				continue
			}
			cloned[k] = v
		}
		if idKey := settingsIDKey[s.Type]; idKey != "" {
			cloned[idKey] = s.Name
		}
		if out[s.Type] == nil {
			out[s.Type] = map[string]map[string]string{}
		}
		out[s.Type][s.Name] = cloned
	}
	return out, nil
}

// SortedNames returns the names in a type's flattened map, sorted, for
// deterministic output.
func SortedNames(m map[string]map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
