package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/internal/client"
	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	commitMessage string
	commitAll     bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an anchor working tree in the current directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmtErr("cannot get current directory: %v", err)
			os.Exit(1)
		}
		r, err := client.Init(cwd)
		if err != nil {
			fmtErr("init: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Initialized anchor working tree in %s\n", color.Success(r.Root))
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone <repo> [dir]",
	Short: "Clone a repository from the server",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		dest := ""
		if len(args) > 1 {
			dest = args[1]
		}
		r, err := client.Clone(api, args[0], dest)
		if err != nil {
			fmtErr("clone %s: %v", args[0], err)
			os.Exit(1)
		}
		abs, _ := filepath.Abs(r.Root)
		fmt.Printf("Cloned %s into %s\n", args[0], color.Success(abs))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the working tree status",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		st, err := r.WorkStatus()
		if err != nil {
			fmtErr("status: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(st)
			return
		}
		if st.Branch != "" {
			fmt.Printf("On branch %s\n", color.Highlight(st.Branch))
		} else {
			fmt.Printf("HEAD detached at %s\n", color.SnapshotID(st.Detached.ShortID()))
		}
		if st.Clean() {
			fmt.Println("nothing to commit, working tree clean")
			return
		}
		for _, f := range st.Modified {
			fmt.Printf("  %s %s\n", color.Warning("modified:"), f)
		}
		for _, f := range st.Deleted {
			fmt.Printf("  %s  %s\n", color.Error("deleted:"), f)
		}
		for _, f := range st.Untracked {
			fmt.Printf("  %s %s\n", color.Dim("untracked:"), f)
		}
	},
}

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Stage files for the next commit",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		if err := r.Add(args); err != nil {
			fmtErr("add: %v", err)
			os.Exit(1)
		}
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit -m <message>",
	Short: "Record the staged tree as a snapshot",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if commitMessage == "" {
			fmtErr("commit message required (-m)")
			os.Exit(1)
		}
		r := requireReplica()
		id, err := r.Commit(commitMessage, commitAll)
		if err != nil {
			fmtErr("commit: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]any{"snapshot_id": id})
			return
		}
		fmt.Printf("[%s] %s\n", color.SnapshotID(id.ShortID()), commitMessage)
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	commitCmd.Flags().BoolVarP(&commitAll, "all", "a", false, "re-stage tracked files before committing")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
}
