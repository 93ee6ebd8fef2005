package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	branchDelete   bool
	checkoutCreate bool
)

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "List, create, or delete branches",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		if len(args) == 0 {
			current, err := r.CurrentBranch()
			if err != nil {
				fmtErr("branch: %v", err)
				os.Exit(1)
			}
			branches, err := r.Branches()
			if err != nil {
				fmtErr("branch: %v", err)
				os.Exit(1)
			}
			for _, b := range branches {
				if b == current {
					fmt.Printf("* %s\n", color.Success(b))
				} else {
					fmt.Printf("  %s\n", b)
				}
			}
			return
		}
		name := args[0]
		if branchDelete {
			if err := r.DeleteBranch(name); err != nil {
				fmtErr("delete branch %s: %v", name, err)
				os.Exit(1)
			}
			fmt.Printf("Deleted branch %s\n", name)
			return
		}
		if err := r.CreateBranch(name); err != nil {
			fmtErr("create branch %s: %v", name, err)
			os.Exit(1)
		}
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch|snapshot>",
	Short: "Switch HEAD to a branch or detach it at a snapshot",
	Long: `Switch HEAD to a branch, or detach it at a snapshot id. Only the
pointer moves: the working tree is left as it is.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		if err := r.Checkout(args[0], checkoutCreate); err != nil {
			fmtErr("checkout %s: %v", args[0], err)
			os.Exit(1)
		}
		branch, err := r.CurrentBranch()
		if err != nil {
			fmtErr("checkout: %v", err)
			os.Exit(1)
		}
		if branch != "" {
			fmt.Printf("Switched to branch %s\n", color.Highlight(branch))
		} else {
			head, _ := r.ResolveHEAD()
			fmt.Printf("HEAD detached at %s\n", color.SnapshotID(head.ShortID()))
		}
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Fast-forward the current branch to another branch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		id, err := r.Merge(args[0])
		if err != nil {
			fmtErr("merge %s: %v", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("Fast-forwarded to %s\n", color.SnapshotID(id.ShortID()))
	},
}

func init() {
	branchCmd.Flags().BoolVarP(&branchDelete, "delete", "d", false, "delete the named branch")
	checkoutCmd.Flags().BoolVarP(&checkoutCreate, "branch", "b", false, "create the branch first")
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(mergeCmd)
}
