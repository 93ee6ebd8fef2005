package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/anchor-vcs/anchor/internal/client"
	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	remoteVerbose bool
	configList    bool
)

var pushCmd = &cobra.Command{
	Use:   "push [remote]",
	Short: "Upload the working tree as a snapshot on the server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		api := requireAPI()
		remote := client.DefaultRemote
		if len(args) > 0 {
			remote = args[0]
		}
		id, err := r.Push(api, remote)
		if err != nil {
			fmtErr("push: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Pushed %s to %s\n", color.SnapshotID(id.ShortID()), remote)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull [remote]",
	Short: "Overwrite the working tree with the server's latest snapshot",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		api := requireAPI()
		remote := client.DefaultRemote
		if len(args) > 0 {
			remote = args[0]
		}
		if err := r.Pull(api, remote); err != nil {
			fmtErr("pull: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Pulled latest from %s\n", remote)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [remote]",
	Short: "Import remote history without touching the working tree",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		api := requireAPI()
		remote := client.DefaultRemote
		if len(args) > 0 {
			remote = args[0]
		}
		head, err := r.Fetch(api, remote)
		if err != nil {
			fmtErr("fetch: %v", err)
			os.Exit(1)
		}
		if head == "" {
			fmt.Println("Remote has no snapshots")
			return
		}
		fmt.Printf("%s/main is at %s\n", remote, color.SnapshotID(head.ShortID()))
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage remotes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listRemotes(requireReplica())
	},
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a remote",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		if err := r.SetRemoteURL(args[0], args[1]); err != nil {
			fmtErr("remote add: %v", err)
			os.Exit(1)
		}
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listRemotes(requireReplica())
	},
}

func listRemotes(r *client.Replica) {
	remotes, err := r.Remotes()
	if err != nil {
		fmtErr("remote: %v", err)
		os.Exit(1)
	}
	for _, name := range remotes {
		if remoteVerbose {
			url, _ := r.RemoteURL(name)
			fmt.Printf("%s\t%s\n", name, url)
		} else {
			fmt.Println(name)
		}
	}
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Read or write replica configuration",
	Args:  cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		r := requireReplica()
		cfg, err := r.ReadConfig()
		if err != nil {
			fmtErr("config: %v", err)
			os.Exit(1)
		}
		switch {
		case configList || len(args) == 0:
			keys := make([]string, 0, len(cfg))
			for k := range cfg {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, cfg[k])
			}
		case len(args) == 1:
			value, ok := cfg[args[0]]
			if !ok {
				fmtErr("config key %s is not set", args[0])
				os.Exit(1)
			}
			fmt.Println(value)
		default:
			cfg[args[0]] = args[1]
			if err := r.WriteConfig(cfg); err != nil {
				fmtErr("config: %v", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	remoteCmd.PersistentFlags().BoolVarP(&remoteVerbose, "verbose", "v", false, "show remote URLs")
	configCmd.Flags().BoolVar(&configList, "list", false, "list all configuration keys")
	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteListCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(configCmd)
}
