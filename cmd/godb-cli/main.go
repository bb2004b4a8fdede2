// Command godb-cli is the interactive client, connecting to a
// godb-server and driving internal/client's REPL over stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jyafoo/godb/internal/client"
)

func main() {
	addr := "localhost:7777"

	rootCmd := &cobra.Command{
		Use:   "godb-cli",
		Short: "Connect to a godb-server and run SQL interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(addr)
			if err != nil {
				return fmt.Errorf("godb-cli: %w", err)
			}
			defer c.Close()

			return client.Interact(c, os.Stdin, os.Stdout)
		},
	}
	rootCmd.Flags().StringVarP(&addr, "addr", "a", addr, "`address` of the godb-server to connect to")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
