package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
)

type queryFlags struct {
	spec       logquery.Spec
	specFile   string
	filter     string
	filterFile string
	output     string
}

func newQueryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query [file...]",
		Short: "Filter, sort and page JSON-lines log records",
		Long: `Reads JSON-lines records from the given files (".zst" files are
decompressed) or from stdin, and prints the records the query selects.

The query is built from --spec (a JSON or YAML logquery document) and the
flags, which take precedence:

  bunlog query app.log --filter '{"user.age": {"$gte": 18}}' --order desc --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.build(cmd)
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), q.Apply(records), f.output)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.specFile, "spec", "", "JSON or YAML file holding a query spec")
	fl.StringVarP(&f.filter, "filter", "f", "", "Inline filter document (JSON or YAML)")
	fl.StringVar(&f.filterFile, "filter-file", "", "File holding the filter document, - for stdin")
	fl.StringVar(&f.spec.Order, "order", "", "Sort direction: asc or desc")
	fl.StringVar(&f.spec.OrderBy, "order-by", "", "Dotted path to sort on (default timestamp)")
	fl.IntVarP(&f.spec.Limit, "limit", "n", 0, "Maximum records to print, 0 for all")
	fl.IntVar(&f.spec.Start, "start", 0, "Records to skip after sorting")
	fl.StringVar(&f.spec.From, "from", "", "Earliest timestamp, absolute or a duration ago (e.g. 1h)")
	fl.StringVar(&f.spec.Until, "until", "", "Latest timestamp, absolute or a duration ago")
	fl.StringSliceVarP(&f.spec.Levels, "level", "l", nil, "Keep only these levels")
	fl.StringVar(&f.spec.Search, "search", "", "Regular expression the message must match")
	fl.StringSliceVar(&f.spec.Fields, "fields", nil, "Dotted paths to project results onto")
	fl.StringVarP(&f.output, "output", "o", "json", "Output format: json, pretty, text or message")
	cmd.MarkFlagsMutuallyExclusive("filter", "filter-file")
	return cmd
}

// build merges the spec file, the flags that were set and the filter into
// a LogQuery.
func (f *queryFlags) build(cmd *cobra.Command) (*logquery.LogQuery, error) {
	var spec logquery.Spec
	if f.specFile != "" {
		data, err := readInput(f.specFile, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("spec %s: %w", f.specFile, err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("order") {
		spec.Order = f.spec.Order
	}
	if changed("order-by") {
		spec.OrderBy = f.spec.OrderBy
	}
	if changed("limit") {
		spec.Limit = f.spec.Limit
	}
	if changed("start") {
		spec.Start = f.spec.Start
	}
	if changed("from") {
		spec.From = f.spec.From
	}
	if changed("until") {
		spec.Until = f.spec.Until
	}
	if changed("level") {
		spec.Levels = f.spec.Levels
	}
	if changed("search") {
		spec.Search = f.spec.Search
	}
	if changed("fields") {
		spec.Fields = f.spec.Fields
	}

	switch {
	case f.filter != "":
		doc, err := parseDocument([]byte(f.filter), "")
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		spec.Filter = doc
	case f.filterFile != "":
		data, err := readInput(f.filterFile, cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		doc, err := parseDocument(data, f.filterFile)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.filterFile, err)
		}
		spec.Filter = doc
	}
	return spec.Build()
}
