package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/bruits/sampo/internal/planner"
	"github.com/bruits/sampo/internal/release"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the release plan without applying it",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().Bool("json", false, "emit the plan as JSON to stdout")
	planCmd.Flags().Bool("watch", false, "re-run planning whenever .sampo/changesets changes")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(cmd)
	if err != nil {
		return err
	}

	jsonFlag, _ := cmd.Flags().GetBool("json")
	watchFlag, _ := cmd.Flags().GetBool("watch")

	runOnce := func() error {
		_, plan, err := release.Plan(root)
		if err != nil {
			return err
		}
		if jsonFlag {
			return writePlanJSON(os.Stdout, plan)
		}
		renderPlanHuman(os.Stderr, plan)
		return nil
	}

	if err := runOnce(); err != nil {
		return err
	}
	if !watchFlag {
		return nil
	}
	return watchChangesets(root, runOnce)
}

// watchChangesets re-runs run whenever a file under .sampo/changesets is
// created, written, or removed, debounced so a burst of edits triggers
// one replan instead of many.
func watchChangesets(root string, run func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Join(root, ".sampo", "changesets")
	if err := watcher.Add(dir); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl-C to stop)...\n", dir)

	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				continue
			}
			pending = true
			timer.Reset(debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := run(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch error:", err)
		}
	}
}

func writePlanJSON(w *os.File, plan *planner.ReleasePlan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encoding plan JSON: %w", err)
	}
	return nil
}

func renderPlanHuman(w *os.File, plan *planner.ReleasePlan) {
	if len(plan.Entries) == 0 {
		fmt.Fprintln(w, "No packages to release.")
	} else {
		fmt.Fprintln(w, "Packages to release:")
		for _, e := range plan.Entries {
			fmt.Fprintf(w, "  %s: %s -> %s (%s, %s)\n", e.ID, e.From, e.To, e.Level, e.Reason)
		}
	}
	if len(plan.RequirementUpdates) > 0 {
		fmt.Fprintln(w, "Dependency requirements to rewrite:")
		for _, u := range plan.RequirementUpdates {
			fmt.Fprintf(w, "  %s: %s -> %q\n", u.PackageID, u.DependencyName, u.NewRequirement)
		}
	}
	for _, d := range plan.Diagnostics {
		fmt.Fprintf(w, "[%s] %s\n", d.Severity, d.Message)
	}
}
