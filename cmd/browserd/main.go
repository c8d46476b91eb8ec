package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := defaultServeOptions()

	root := &cobra.Command{
		Use:           "browserd",
		Short:         "OpenAI-compatible API over a single automated browser session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	bindServeFlags(root, opts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	bindServeFlags(serveCmd, opts)
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the browserd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("browserd", version)
		},
	})

	return root
}
