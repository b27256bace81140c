// Package envvar names the environment bindings the CLI layer reads and
// passes into the core as configuration parameters (spec.md §6): the core
// itself never reads the environment directly. Adapted from
// roboll-helmfile's pkg/envvar, same flat const-table shape, renamed to
// the four bindings this domain needs.
package envvar

// CatalogueURL points at the MODEL CATALOGUE JSON document.
const CatalogueURL = "SLICERPROFILEDB_CATALOGUE_URL"

// CatalogueToken is an optional bearer token that extends rate limits on
// tag enumeration and catalogue fetches.
const CatalogueToken = "SLICERPROFILEDB_CATALOGUE_TOKEN"

// StoreRoot overrides the default on-disk root of the versioned profile
// store.
const StoreRoot = "SLICERPROFILEDB_STORE_ROOT"

// OverlayDir overrides the directory containing pre-squashed overlay
// profiles applied on top of extracted profiles after squashing.
const OverlayDir = "SLICERPROFILEDB_OVERLAY_DIR"
