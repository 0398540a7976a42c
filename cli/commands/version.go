package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemamigrate/cli/internal/ui"
	"github.com/satishbabariya/schemamigrate/cli/internal/update"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// no config is needed to print the version
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runVersion,
}

var (
	versionCheck  bool
	versionLatest string
)

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Compare with the latest release")
	versionCmd.Flags().StringVar(&versionLatest, "latest", "", "Latest release version (default $SCHEMAMIGRATE_LATEST_VERSION)")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schemamigrate version %s\n", Version)
	fmt.Fprintf(out, "Build Date: %s\nGit Commit: %s\nPlatform: %s/%s\nGo Version: %s\n",
		BuildDate, GitCommit, runtime.GOOS, runtime.GOARCH, runtime.Version())

	if !versionCheck {
		return nil
	}
	latest := versionLatest
	if latest == "" {
		v.SetEnvPrefix("SCHEMAMIGRATE")
		_ = v.BindEnv("latest_version")
		latest = v.GetString("latest_version")
	}
	if latest == "" {
		return fmt.Errorf("no latest version to compare with: pass --latest or set SCHEMAMIGRATE_LATEST_VERSION")
	}

	status, err := update.Check(Version, latest)
	if err != nil {
		return err
	}
	if status.Available {
		ui.PrintWarning("A new version is available: %s (current %s)", status.Latest, status.Current)
		ui.PrintInfo("Update with: %s", update.InstallHint(status.Latest))
		return nil
	}
	ui.PrintSuccess("schemamigrate %s is up to date", status.Current)
	return nil
}
