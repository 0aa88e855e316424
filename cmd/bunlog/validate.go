package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

func newValidateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a filter document and print its normalized form",
		Long: `Decodes a JSON or YAML filter document (stdin when no file is given).
On success the document is printed in normalized form; on failure the
error names the location of the problem, e.g. "$and[1].user.age".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			doc, err := parseDocument(data, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			n, err := query.Decode(doc)
			if err != nil {
				return err
			}
			norm, err := query.Encode(n)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				data, err = norm.MarshalJSON()
				if err == nil {
					data = append(data, '\n')
				}
			case "yaml":
				data, err = yaml.Marshal(norm)
			default:
				return fmt.Errorf("unknown output format %q (want json or yaml)", output)
			}
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	return cmd
}
