package squash

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/version"
	"gopkg.in/ini.v1"
)

// VersionGroup is every vendor bundle available at one version.
type VersionGroup struct {
	Version string
	Vendors []string
}

var flatININame = regexp.MustCompile(`^([A-Za-z0-9_]+)\.ini$`)

// EnumerateVersions recognizes both INI bundle layouts spec.md §4.E
// names: versioned ({vendor}/{version}.ini, version from filename) and
// flat (root-level {VendorName}.ini, version parsed from the bundle's own
// [vendor] config_version field). Flat-layout files are first logically
// relocated into {VendorName}/ before grouping. Versions below minVersion
// are filtered out.
func EnumerateVersions(root, minVersion string) ([]VersionGroup, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("squash: read bundle root: %w", err)
	}

	byVersion := map[string]map[string]bool{}

	for _, e := range entries {
		if e.IsDir() {
			vendor := e.Name()
			vendorDir := filepath.Join(root, vendor)
			files, err := os.ReadDir(vendorDir)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".ini") {
					continue
				}
				ver := strings.TrimSuffix(f.Name(), ".ini")
				addVersion(byVersion, ver, vendor)
			}
			continue
		}

		m := flatININame.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		vendor := m[1]
		ver, err := configVersionOf(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		addVersion(byVersion, ver, vendor)
	}

	var out []VersionGroup
	for ver, vendors := range byVersion {
		if minVersion != "" && version.Compare(ver, minVersion) < 0 {
			continue
		}
		names := make([]string, 0, len(vendors))
		for v := range vendors {
			names = append(names, v)
		}
		sort.Strings(names)
		out = append(out, VersionGroup{Version: ver, Vendors: names})
	}
	sort.Slice(out, func(i, j int) bool {
		return version.Compare(out[i].Version, out[j].Version) < 0
	})
	return out, nil
}

func addVersion(byVersion map[string]map[string]bool, ver, vendor string) {
	m, ok := byVersion[ver]
	if !ok {
		m = map[string]bool{}
		byVersion[ver] = m
	}
	m[vendor] = true
}

func configVersionOf(path string) (string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return "", err
	}
	sec, err := f.GetSection("vendor")
	if err != nil {
		return "", err
	}
	v := sec.Key("config_version").String()
	if v == "" {
		return "", fmt.Errorf("squash: no config_version in %s", path)
	}
	return v, nil
}
