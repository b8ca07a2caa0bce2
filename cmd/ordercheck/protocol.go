package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
)

func newProtocolCmd() *cobra.Command {
	var format string
	var summary bool
	cmd := &cobra.Command{
		Use:   "protocol FILE",
		Short: "Compile a protocol and print it as DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), ".")
			}

			d, err := typestate.NewCompiler().CompileProtocol(format, string(raw))
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}

			out := cmd.OutOrStdout()
			if summary {
				for _, s := range d.States() {
					marks := ""
					if s.Start {
						marks += " start"
					}
					if s.Accepting {
						marks += " accepting"
					}
					fmt.Fprintf(out, "%s%s: %s\n", s.Name, marks, strings.Join(d.ExpectedOps(s.ID), " "))
				}
				return nil
			}

			dot, err := d.DOT()
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			fmt.Fprintln(out, dot)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "protocol format; derived from the file extension when empty")
	cmd.Flags().BoolVar(&summary, "summary", false, "print states and their expected operations instead of DOT")
	return cmd
}
