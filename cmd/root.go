package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bruits/sampo/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "sampo",
	Short: "Release planning for polyglot monorepos",
	Long: "Sampo turns pending changesets into a version plan across cargo, npm, " +
		"hex, pypi, and packagist packages, then applies that plan: manifests, " +
		"changelogs, and dependency requirements get rewritten together " +
		"(lockfiles are not regenerated).",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "workspace root (default: nearest ancestor of the current directory containing .sampo)")
}

// workspaceRoot resolves the --root flag, defaulting to the nearest
// ancestor of the working directory that contains a .sampo directory.
func workspaceRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	if root != "" {
		return root, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return workspace.FindRoot(wd)
}
