// Command genecluster serves and queries the ortholog cluster index.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

// rootOptions carry the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	trace      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "genecluster:", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "genecluster",
		Short:         "Look up ortholog clusters by gene symbol, alias or stable id",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration (defaults plus GENECLUSTER_* env when empty)")
	root.PersistentFlags().BoolVar(&opts.trace, "trace", false, "write one JSON trace line per operation to stderr")

	root.AddCommand(
		newServeCmd(opts),
		newQueryCmd(opts),
		newClusterCmd(opts),
		newCacheCmd(opts),
	)
	return root
}
