package cli

import (
	"fmt"
	"os"

	"github.com/anchor-vcs/anchor/internal/client"
	"github.com/anchor-vcs/anchor/pkg/color"
)

// requireReplica opens the replica containing the working directory or
// exits with a hint.
func requireReplica() *client.Replica {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	r, err := client.Open(cwd)
	if err != nil {
		fmtErr("not inside an anchor working tree (run 'anchor init' or 'anchor clone' first)")
		os.Exit(1)
	}
	return r
}

// requireAPI loads the persisted session or exits asking for a login.
func requireAPI() *client.API {
	sess, err := client.LoadSession()
	if err != nil {
		fmtErr("load session: %v", err)
		os.Exit(1)
	}
	if sess.ServerURL == "" {
		fmtErr("not logged in, run 'anchor login <server>' first")
		os.Exit(1)
	}
	return client.NewAPI(sess)
}

func fmtErr(format string, args ...any) {
	prefix := "anchor: "
	if color.Enabled() {
		prefix = color.Error("anchor:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
