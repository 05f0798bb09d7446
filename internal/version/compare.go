package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckVersionCompatibility checks if the engine and strategy API versions are
// compatible. Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
//
// Examples:
//   - Engine 1.2.0, Strategy 1.2.0 -> OK (exact match)
//   - Engine 1.2.1, Strategy 1.2.0 -> OK (patch differs)
//   - Engine 1.3.0, Strategy 1.2.0 -> ERROR (minor differs)
//   - Engine 2.0.0, Strategy 1.2.0 -> ERROR (major differs)
//   - Engine main, Strategy 1.2.0 -> OK (dev build, skip check)
//   - Engine 1.2.0, Strategy main -> OK (dev build, skip check)
func CheckVersionCompatibility(engineVersion, strategyVersion string) error {
	// Strip 'v' prefix if present for consistency
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	strategyVersion = strings.TrimPrefix(strategyVersion, "v")

	// Skip version check for "main" (development builds)
	if engineVersion == "main" || strategyVersion == "main" {
		return nil
	}

	// Parse engine version
	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version '%s': %w", engineVersion, err)
	}

	// Parse strategy version
	strategySemver, err := semver.NewVersion(strategyVersion)
	if err != nil {
		return fmt.Errorf("invalid strategy version '%s': %w", strategyVersion, err)
	}

	// Check major version match
	if engineSemver.Major() != strategySemver.Major() {
		return fmt.Errorf("major version mismatch: engine is %d.x.x but strategy requires %d.x.x",
			engineSemver.Major(), strategySemver.Major())
	}

	// Check minor version match
	if engineSemver.Minor() != strategySemver.Minor() {
		return fmt.Errorf("minor version mismatch: engine is %d.%d.x but strategy requires %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			strategySemver.Major(), strategySemver.Minor())
	}

	// Patch versions can differ, so we're compatible
	return nil
}
