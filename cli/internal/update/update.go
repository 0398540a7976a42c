// Package update compares the running version with a published release.
package update

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// Status is the outcome of a version comparison.
type Status struct {
	Current   string
	Latest    string
	Available bool
}

// Check reports whether latest is newer than current. Both accept an
// optional leading "v".
func Check(current, latest string) (Status, error) {
	cur, err := version.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return Status{}, fmt.Errorf("invalid version format %q: %w", current, err)
	}
	lat, err := version.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return Status{}, fmt.Errorf("invalid latest version format %q: %w", latest, err)
	}
	return Status{
		Current:   cur.String(),
		Latest:    lat.String(),
		Available: cur.LessThan(lat),
	}, nil
}

// InstallHint is the command that upgrades the CLI.
func InstallHint(latest string) string {
	return fmt.Sprintf("go install github.com/satishbabariya/schemamigrate/cli@v%s", strings.TrimPrefix(latest, "v"))
}
