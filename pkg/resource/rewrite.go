package resource

import "github.com/roboll/slicerprofiledb/pkg/profile"

// RewriteReferences mutates settings in place: any key in
// profile.ResourceKeys whose value is a bare filename present in
// collected is rewritten to "sha256:{digest}". Keys whose filename is not
// in collected are left unchanged. This must run before storage.
func RewriteReferences(settings map[string]profile.Value, collected map[string]string) {
	for key := range profile.ResourceKeys {
		v, ok := settings[key]
		if !ok {
			continue
		}
		name, ok := v.V.(string)
		if !ok {
			continue
		}
		hash, ok := collected[name]
		if !ok {
			continue
		}
		settings[key] = profile.NewValue(Ref(hash))
	}
}

// DiscoverReferencedHashes scans every stored profile's versioned settings
// for the resource keys, collecting every value matching
// "^sha256:[0-9a-f]+$" with the prefix stripped. The result is suitable to
// pass directly to GC.
func DiscoverReferencedHashes(profiles []*profile.StoredProfile) map[string]bool {
	out := map[string]bool{}
	for _, p := range profiles {
		for key := range profile.ResourceKeys {
			h, ok := p.Settings[key]
			if !ok {
				continue
			}
			for _, ver := range h.Versions() {
				v, _ := h.At(ver)
				s, ok := v.V.(string)
				if !ok {
					continue
				}
				if hash, ok := ParseRef(s); ok {
					out[hash] = true
				}
			}
		}
	}
	return out
}
