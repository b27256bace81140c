package profile

import (
	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// ResourceKeys is the designated set of setting keys whose values carry
// binary-file references (spec.md §3).
var ResourceKeys = map[string]bool{
	"bed_model":    true,
	"bed_texture":  true,
	"thumbnail":    true,
	"hotend_model": true,
}

// ParsedProfile is transient: produced by a parser, consumed once by the
// store during ingestion.
type ParsedProfile struct {
	Slicer      slicer.Type
	ProfileType slicer.ProfileType
	Name        string
	Vendor      string

	Settings map[string]Value

	FilamentID         string
	SettingID          string
	FilamentType       string
	FilamentSettingsID string

	RenamedFrom string
	SourcePath  string
}

// History is the ordered mapping from version string to value for a
// single setting key. Order is insertion order: the order versions were
// appended during ingestion, which is always oldest-to-newest because
// ingestion processes versions strictly in version order (spec.md §5).
type History struct {
	versions []string
	values   map[string]Value
}

func NewHistory() *History {
	return &History{values: map[string]Value{}}
}

func (h *History) Append(version string, v Value) {
	if _, ok := h.values[version]; !ok {
		h.versions = append(h.versions, version)
	}
	h.values[version] = v
}

func (h *History) Versions() []string {
	return h.versions
}

func (h *History) Len() int {
	return len(h.versions)
}

func (h *History) At(version string) (Value, bool) {
	v, ok := h.values[version]
	return v, ok
}

// Latest returns the most recently appended value, or false if empty.
func (h *History) Latest() (Value, bool) {
	if len(h.versions) == 0 {
		return Value{}, false
	}
	return h.values[h.versions[len(h.versions)-1]], true
}

// StoredProfile is the persistent representation: identity tuple plus
// per-setting version history.
type StoredProfile struct {
	Slicer      slicer.Type
	ProfileType slicer.ProfileType
	Vendor      string
	Name        string

	FirstSeen string
	LastSeen  string

	FilamentID  string
	SettingID   string
	RenamedFrom string

	Settings map[string]*History
}

func NewStoredProfile(slicerType slicer.Type, pt slicer.ProfileType, vendor, name string) *StoredProfile {
	return &StoredProfile{
		Slicer:      slicerType,
		ProfileType: pt,
		Vendor:      vendor,
		Name:        name,
		Settings:    map[string]*History{},
	}
}

// Key is the on-disk identity tuple (slicer, profile_type, vendor, name).
type Key struct {
	Slicer      slicer.Type
	ProfileType slicer.ProfileType
	Vendor      string
	Name        string
}

func (s *StoredProfile) Key() Key {
	return Key{Slicer: s.Slicer, ProfileType: s.ProfileType, Vendor: s.Vendor, Name: s.Name}
}
