// Package slicer holds the closed identity enumerations every other
// component is scoped by: the slicer variant and the profile type.
package slicer

import "fmt"

// Type is one of the six supported slicer ecosystems.
type Type string

const (
	BambuStudio  Type = "bambustudio"
	OrcaSlicer   Type = "orcaslicer"
	PrusaSlicer  Type = "prusaslicer"
	Cura         Type = "cura"
	ElegooSlicer Type = "elegooslicer"
	SuperSlicer  Type = "superslicer"
)

// Types lists every supported slicer, in a fixed order used wherever
// output needs to be deterministic across all six.
var Types = []Type{BambuStudio, OrcaSlicer, PrusaSlicer, Cura, ElegooSlicer, SuperSlicer}

func (t Type) Valid() bool {
	switch t {
	case BambuStudio, OrcaSlicer, PrusaSlicer, Cura, ElegooSlicer, SuperSlicer:
		return true
	}
	return false
}

// IsSlic3rJSON reports whether this slicer's native format is slic3r-style
// JSON with include/inherits (BambuStudio, OrcaSlicer, ElegooSlicer), as
// opposed to PrusaSlicer/SuperSlicer INI bundles or Cura's XML/def.json.
func (t Type) IsSlic3rJSON() bool {
	switch t {
	case BambuStudio, OrcaSlicer, ElegooSlicer:
		return true
	}
	return false
}

// IsINIBundle reports whether this slicer's native format is an INI
// bundle (PrusaSlicer, SuperSlicer).
func (t Type) IsINIBundle() bool {
	return t == PrusaSlicer || t == SuperSlicer
}

// ProfileType is the closed enumeration of profile kinds. Source formats
// that label this "process" canonicalize to Print on read.
type ProfileType string

const (
	Filament     ProfileType = "filament"
	Machine      ProfileType = "machine"
	MachineModel ProfileType = "machine_model"
	Print        ProfileType = "print"
)

func (p ProfileType) Valid() bool {
	switch p {
	case Filament, Machine, MachineModel, Print:
		return true
	}
	return false
}

// CanonicalProfileType maps a raw source-format type tag to the closed
// ProfileType enum, folding the "process" alias used by slic3r-JSON
// sources onto Print.
func CanonicalProfileType(raw string) (ProfileType, error) {
	switch raw {
	case "filament":
		return Filament, nil
	case "machine":
		return Machine, nil
	case "machine_model":
		return MachineModel, nil
	case "process", "print":
		return Print, nil
	default:
		return "", fmt.Errorf("slicer: unrecognized profile type %q", raw)
	}
}

// SourceConfig is read-only reference data describing where a slicer's
// profile archive comes from. It is process-wide configuration, computed
// once and never mutated, per the "process-wide configuration" design
// note: model per-slicer tables as immutable maps keyed by variant.
type SourceConfig struct {
	// Repo is the owner/name of the upstream GitHub repository publishing
	// profiles for this slicer.
	Repo string
	// ArchiveURLPattern is a go-getter source string with a single "{tag}"
	// placeholder substituted with the raw tag being fetched.
	ArchiveURLPattern string
	// ProfileRoot is the path, relative to the extracted archive root,
	// under which vendor directories (or the INI bundle tree) live.
	ProfileRoot string
	// TagPattern restricts tag enumeration to tags naming a profile
	// release (as opposed to unrelated repository tags).
	TagPattern string
}

// SourceConfigs is the per-slicer source table, supplementing spec.md §6's
// catalogue data contract with the archive-fetch configuration the
// original implementation's download.py hard-coded as DEFAULT_CONFIGS.
var SourceConfigs = map[Type]SourceConfig{
	BambuStudio: {
		Repo:              "bambulab/BambuStudio",
		ArchiveURLPattern: "git::https://github.com/bambulab/BambuStudio.git?ref={tag}",
		ProfileRoot:       "resources/profiles",
		TagPattern:        `^v?\d`,
	},
	OrcaSlicer: {
		Repo:              "SoftFever/OrcaSlicer",
		ArchiveURLPattern: "git::https://github.com/SoftFever/OrcaSlicer.git?ref={tag}",
		ProfileRoot:       "resources/profiles",
		TagPattern:        `^v?\d`,
	},
	PrusaSlicer: {
		Repo:              "prusa3d/PrusaSlicer-settings",
		ArchiveURLPattern: "git::https://github.com/prusa3d/PrusaSlicer-settings.git?ref={tag}",
		ProfileRoot:       "live",
		TagPattern:        `^\d`,
	},
	ElegooSlicer: {
		Repo:              "ELEGOO-3D/ElegooSlicer",
		ArchiveURLPattern: "git::https://github.com/ELEGOO-3D/ElegooSlicer.git?ref={tag}",
		ProfileRoot:       "resources/profiles",
		TagPattern:        `^v?\d`,
	},
	SuperSlicer: {
		Repo:              "supermerill/SuperSlicer",
		ArchiveURLPattern: "git::https://github.com/supermerill/SuperSlicer.git?ref={tag}",
		ProfileRoot:       "resources/profiles",
		TagPattern:        `^v?\d`,
	},
	Cura: {
		Repo:              "Ultimaker/Cura",
		ArchiveURLPattern: "git::https://github.com/Ultimaker/Cura.git?ref={tag}",
		ProfileRoot:       "resources",
		TagPattern:        `^\d`,
	},
}
