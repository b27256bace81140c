package squash

import "fmt"

// RawJSONProfile is a loaded slic3r-JSON file before include/inherits
// resolution, keyed by the profile's "name" field (or file stem — the
// caller resolves that before building this set, per spec.md §4.D's name
// fallback).
type RawJSONProfile struct {
	Name            string
	Settings        map[string]interface{}
	Include         []string
	Inherits        string
	Instantiation   string
	IsMachineModel  bool
}

type jsonFlattenState int

const (
	jsonResolving jsonFlattenState = iota
	jsonResolved
)

// FlattenJSONVendor resolves include (merge-if-absent from named
// siblings, skipping "name"/"instantiation") then inherits (single
// parent, recursive, memoized) across every profile in a vendor's
// directory (profiles map keyed by name). It returns only the profiles
// that should be emitted: those with instantiation=="true", plus every
// MachineModel profile (which never carries instantiation), per spec.md
// §4.E step 4.
func FlattenJSONVendor(profiles map[string]*RawJSONProfile) (map[string]map[string]interface{}, error) {
	// Step 2: resolve include first, directly on each profile's own
	// settings, before any inherits walk begins.
	ownSettings := make(map[string]map[string]interface{}, len(profiles))
	for name, p := range profiles {
		own := make(map[string]interface{}, len(p.Settings))
		for k, v := range p.Settings {
			own[k] = v
		}
		applyIncludes(own, p, profiles)
		ownSettings[name] = own
	}

	resolving := map[string]bool{}
	resolved := map[string]map[string]interface{}{}

	// Step 3: recursively resolve inherits, memoized, parent applied then
	// own (include-merged) keys override.
	var resolve func(name string) (map[string]interface{}, error)
	resolve = func(name string) (map[string]interface{}, error) {
		if v, ok := resolved[name]; ok {
			return v, nil
		}
		if resolving[name] {
			return nil, fmt.Errorf("squash: cyclic inherits at %s", name)
		}
		p, ok := profiles[name]
		if !ok {
			return nil, fmt.Errorf("squash: unresolved inherits target %s", name)
		}

		resolving[name] = true
		defer delete(resolving, name)

		flat := map[string]interface{}{}
		if p.Inherits != "" {
			parentFlat, err := resolve(p.Inherits)
			if err != nil {
				return nil, err
			}
			for k, v := range parentFlat {
				flat[k] = v
			}
		}
		for k, v := range ownSettings[name] {
			flat[k] = v
		}
		delete(flat, "include")
		delete(flat, "inherits")

		resolved[name] = flat
		return flat, nil
	}

	// Step 4: emit only instantiable profiles, plus every MachineModel.
	out := map[string]map[string]interface{}{}
	for name, p := range profiles {
		flat, err := resolve(name)
		if err != nil {
			continue
		}
		if p.Instantiation == "true" || p.IsMachineModel {
			out[name] = flat
		}
	}
	return out, nil
}

// applyIncludes applies each named sibling's keys to own, but only where
// own does not already define the key and the included key is not
// "name" or "instantiation".
func applyIncludes(own map[string]interface{}, p *RawJSONProfile, profiles map[string]*RawJSONProfile) {
	for _, incName := range p.Include {
		sibling, ok := profiles[incName]
		if !ok {
			continue
		}
		for k, v := range sibling.Settings {
			if k == "name" || k == "instantiation" {
				continue
			}
			if _, exists := own[k]; exists {
				continue
			}
			own[k] = v
		}
	}
}
