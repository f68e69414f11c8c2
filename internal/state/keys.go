// Package state implements the shared workflow state store: typed phase
// results under enumerated keys, partitioned by scope.
//
// Session scope is ephemeral and lives in Redis alongside the workflow run.
// User scope is durable and lives in SQL; it survives sessions and is read
// through into every new session for the same reader. App scope is shared
// read-mostly configuration.
package state

import "github.com/storyland-ai/storyland/internal/models"

// Scope determines where a key is stored and how long it lives.
type Scope int

const (
	// ScopeSession values exist for one workflow run.
	ScopeSession Scope = iota
	// ScopeUser values are durable per reader and carry across sessions.
	ScopeUser
	// ScopeApp values are shared across all users and sessions.
	ScopeApp
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeUser:
		return "user"
	case ScopeApp:
		return "app"
	}
	return "unknown"
}

// Key identifies one slot in the state store. The set is closed: writers use
// these constants, never raw strings, so every phase output has a declared
// owner and scope.
type Key string

const (
	KeyBookMetadata      Key = "book_metadata"
	KeyBookContext       Key = "book_context"
	KeyReaderProfile     Key = "reader_profile"
	KeyCityDiscovery     Key = "city_discovery"
	KeyLandmarkDiscovery Key = "landmark_discovery"
	KeyAuthorSites       Key = "author_sites"
	KeyRegionAnalysis    Key = "region_analysis"
	KeySelectedRegions   Key = "selected_regions"
	KeyFinalItinerary    Key = "final_itinerary"

	// KeyUserPreferences is the durable reader profile source. New sessions
	// read it through into KeyReaderProfile without copying rows.
	KeyUserPreferences Key = "user:preferences"

	// KeyAppGazetteerVersion tracks which embedded gazetteer produced the
	// stored region analyses.
	KeyAppGazetteerVersion Key = "app:gazetteer_version"
)

// Scope returns where the key lives.
func (k Key) Scope() Scope {
	switch {
	case len(k) > 5 && k[:5] == "user:":
		return ScopeUser
	case len(k) > 4 && k[:4] == "app:":
		return ScopeApp
	default:
		return ScopeSession
	}
}

// Durable reports whether writes to the key outlive the session.
func (k Key) Durable() bool { return k.Scope() != ScopeSession }

// sessionKeys is the write order of a full run, used by Snapshot.
var sessionKeys = []Key{
	KeyBookMetadata,
	KeyBookContext,
	KeyReaderProfile,
	KeyCityDiscovery,
	KeyLandmarkDiscovery,
	KeyAuthorSites,
	KeyRegionAnalysis,
	KeySelectedRegions,
	KeyFinalItinerary,
}

// kindFor maps a key to the result kind it may hold. Writes with a
// mismatched payload are rejected.
var kindFor = map[Key]models.ResultKind{
	KeyBookMetadata:      models.KindBookMetadata,
	KeyBookContext:       models.KindBookContext,
	KeyReaderProfile:     models.KindPreferences,
	KeyCityDiscovery:     models.KindCityDiscovery,
	KeyLandmarkDiscovery: models.KindLandmarkDiscovery,
	KeyAuthorSites:       models.KindAuthorSites,
	KeyRegionAnalysis:    models.KindRegionAnalysis,
	KeySelectedRegions:   models.KindSelection,
	KeyFinalItinerary:    models.KindItinerary,
	KeyUserPreferences:   models.KindPreferences,
}
