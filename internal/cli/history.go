package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	logOneline bool
	diffStaged bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the snapshot history of the current branch",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		history, err := r.Log()
		if err != nil {
			fmtErr("log: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(history)
			return
		}
		for _, snap := range history {
			if logOneline {
				fmt.Printf("%s %s\n", color.SnapshotID(snap.SnapshotID.ShortID()), snap.Message)
				continue
			}
			fmt.Printf("%s %s\n", color.Header("snapshot"), color.SnapshotID(string(snap.SnapshotID)))
			fmt.Printf("Date: %s\n", snap.Timestamp)
			fmt.Printf("\n    %s\n\n", snap.Message)
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show [revision]",
	Short: "Show a snapshot and the files it contains",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		rev := ""
		if len(args) > 0 {
			rev = args[0]
		}
		snap, tree, err := r.Show(rev)
		if err != nil {
			fmtErr("show: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]any{"snapshot": snap, "tree": tree})
			return
		}
		fmt.Printf("%s %s\n", color.Header("snapshot"), color.SnapshotID(string(snap.SnapshotID)))
		fmt.Printf("Date: %s\n", snap.Timestamp)
		fmt.Printf("\n    %s\n\n", snap.Message)
		paths := make([]string, 0, len(tree.Entries))
		for p := range tree.Entries {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	},
}

var blameCmd = &cobra.Command{
	Use:   "blame <path>",
	Short: "Show the snapshot that last changed a file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		snap, err := r.Blame(args[0])
		if err != nil {
			fmtErr("blame %s: %v", args[0], err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(snap)
			return
		}
		fmt.Printf("%s last changed in %s (%s) %s\n",
			args[0], color.SnapshotID(snap.SnapshotID.ShortID()), snap.Timestamp, snap.Message)
	},
}

var reflogCmd = &cobra.Command{
	Use:   "reflog",
	Short: "Show the local HEAD movement log",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		lines, err := r.Reflog()
		if err != nil {
			fmtErr("reflog: %v", err)
			os.Exit(1)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show unified diffs of working tree or staged changes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		var text string
		var err error
		if diffStaged {
			text, err = r.DiffStaged()
		} else {
			text, err = r.DiffWorktree()
		}
		if err != nil {
			fmtErr("diff: %v", err)
			os.Exit(1)
		}
		fmt.Print(text)
	},
}

func init() {
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "one snapshot per line")
	diffCmd.Flags().BoolVar(&diffStaged, "staged", false, "diff the index against HEAD instead of the working tree")
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(blameCmd)
	rootCmd.AddCommand(reflogCmd)
	rootCmd.AddCommand(diffCmd)
}
