package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	createPublic bool
	favoriteOff  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories on the server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		repos, err := api.ListRepos()
		if err != nil {
			fmtErr("list repositories: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(repos)
			return
		}
		for _, r := range repos {
			marker := " "
			if r.IsFavorite {
				marker = color.Highlight("*")
			}
			fmt.Printf("%s %s\n", marker, r.Name)
		}
	},
}

var sysCmd = &cobra.Command{
	Use:   "sys <repo>",
	Short: "Show repository statistics",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		stats, err := api.Stats(args[0])
		if err != nil {
			fmtErr("stats for %s: %v", args[0], err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(stats)
			return
		}
		fmt.Printf("%s\n", color.Header(args[0]))
		fmt.Printf("  Snapshots: %d\n", stats.SnapshotCount)
		fmt.Printf("  Files at head: %d\n", stats.FileCount)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a repository on the server",
	Long: `Create a repository on the server. Creation requires a fresh
step-up verification, so the command re-prompts for your password
(and two-factor code when enabled).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		password := promptPassword("Password (step-up): ")
		code := promptLine("Two-factor code (empty if disabled): ")
		if err := api.StepUp(password, code); err != nil {
			fmtErr("step-up verification failed: %v", err)
			os.Exit(1)
		}
		if err := api.CreateRepo(args[0], createPublic); err != nil {
			fmtErr("create %s: %v", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("Created repository %s\n", color.Success(args[0]))
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <repo>",
	Short: "Mark or unmark a repository as a favorite",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		if err := api.SetFavorite(args[0], !favoriteOff); err != nil {
			fmtErr("favorite %s: %v", args[0], err)
			os.Exit(1)
		}
		if favoriteOff {
			fmt.Printf("Removed %s from favorites\n", args[0])
		} else {
			fmt.Printf("Added %s to favorites\n", args[0])
		}
	},
}

func init() {
	createCmd.Flags().BoolVar(&createPublic, "public", false, "make the repository readable by guests")
	favoriteCmd.Flags().BoolVar(&favoriteOff, "off", false, "remove the favorite mark")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(sysCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(favoriteCmd)
}
