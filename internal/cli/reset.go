package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/internal/client"
	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	resetHard   bool
	resetSoft   bool
	cleanDryRun bool
)

var resetCmd = &cobra.Command{
	Use:   "reset [revision] [path]",
	Short: "Move HEAD to a revision, or restore a path's index entry",
	Long: `Move HEAD to a revision. The default (mixed) reset also rewrites
the index from the target tree; --hard additionally rewrites the files;
--soft moves the pointer only. With a path argument, only that path's
index entry is taken from the revision.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		rev := "HEAD"
		if len(args) > 0 {
			rev = args[0]
		}
		if len(args) == 2 {
			if err := r.ResetPath(rev, args[1]); err != nil {
				fmtErr("reset %s %s: %v", rev, args[1], err)
				os.Exit(1)
			}
			return
		}
		mode := client.ResetMixed
		if resetHard {
			mode = client.ResetHard
		} else if resetSoft {
			mode = client.ResetSoft
		}
		if err := r.Reset(rev, mode); err != nil {
			fmtErr("reset %s: %v", rev, err)
			os.Exit(1)
		}
		head, _ := r.ResolveHEAD()
		fmt.Printf("HEAD is now at %s\n", color.SnapshotID(head.ShortID()))
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <path>...",
	Short: "Rewrite working-tree files from their staged blobs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		for _, path := range args {
			if err := r.Restore(path); err != nil {
				fmtErr("restore %s: %v", path, err)
				os.Exit(1)
			}
		}
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete untracked files from the working tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		removed, err := r.Clean(cleanDryRun)
		if err != nil {
			fmtErr("clean: %v", err)
			os.Exit(1)
		}
		verb := "Removed"
		if cleanDryRun {
			verb = "Would remove"
		}
		for _, f := range removed {
			fmt.Printf("%s %s\n", verb, f)
		}
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage-collect unreachable objects",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		removed, err := r.GC()
		if err != nil {
			fmtErr("gc: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d unreachable objects\n", removed)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetHard, "hard", false, "also rewrite working-tree files")
	resetCmd.Flags().BoolVar(&resetSoft, "soft", false, "move HEAD only")
	cleanCmd.Flags().BoolVarP(&cleanDryRun, "dry-run", "n", false, "list what would be removed without deleting")
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(gcCmd)
}
