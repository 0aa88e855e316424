package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kartikbazzad/bunbase/bunlog/query"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseDocument parses a query or spec document. Files ending in .yaml
// or .yml are YAML, .json files are JSON, anything else is tried as JSON
// and then as YAML, so inline documents may use either.
func parseDocument(data []byte, name string) (query.Value, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return query.ParseYAML(data)
	case ".json":
		return query.ParseJSON(data)
	}
	if v, err := query.ParseJSON(data); err == nil {
		return v, nil
	}
	return query.ParseYAML(data)
}

// loadRecords reads JSON-lines records from each path, or from stdin when
// paths is empty or a path is "-".
func loadRecords(ctx context.Context, paths []string, stdin io.Reader) ([]query.Value, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var all []query.Value
	for _, p := range paths {
		var (
			records []query.Value
			err     error
		)
		if p == "-" {
			records, err = transport.ReadRecords(ctx, stdin)
			if err != nil {
				err = fmt.Errorf("stdin: %w", err)
			}
		} else {
			records, err = transport.ReadFile(ctx, p)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

var outputFormats = []string{"json", "pretty", "text", "message"}

// writeRecords prints records as JSON lines ("json"), indented JSON
// ("pretty"), or log lines ("text", "message").
func writeRecords(w io.Writer, records []query.Value, format string) error {
	switch format {
	case "", "json", "pretty":
		bw := bufio.NewWriter(w)
		for _, r := range records {
			var (
				data []byte
				err  error
			)
			if format == "pretty" {
				data, err = json.MarshalIndent(r, "", "  ")
			} else {
				data, err = r.MarshalJSON()
			}
			if err != nil {
				return err
			}
			bw.Write(data)
			bw.WriteByte('\n')
		}
		return bw.Flush()
	case "text", "message":
		f, err := transport.ParseFormat(format)
		if err != nil {
			return err
		}
		entries := make([]transport.Entry, 0, len(records))
		for i, r := range records {
			e, err := transport.EntryFromValue(r)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			entries = append(entries, e)
		}
		wt := transport.NewWriterTransport(w, f)
		wt.LogBatch(entries)
		return wt.Flush()
	}
	return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(outputFormats, ", "))
}
