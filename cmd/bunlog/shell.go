package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
)

const shellHelp = `Enter a filter document to run it, e.g.
  {"level": {"$eq": "error"}}
  {user.age: {$gte: 18}}
An empty document {} selects everything.

Settings:
  :order asc|desc|none   sort direction
  :by PATH               sort key (default timestamp)
  :limit N  :start N     page
  :levels a,b            level allow-list (empty to clear)
  :search REGEXP         message search (empty to clear)
  :fields a,b            projection (empty to clear)
  :output FORMAT         json, pretty, text or message
  :show                  print the current settings
  :reset                 restore defaults
Other:
  :load FILE...          add records
  :count                 number of loaded records
  :help  :quit`

var shellCommands = []string{
	":order", ":by", ":limit", ":start", ":levels", ":search", ":fields",
	":output", ":show", ":reset", ":load", ":count", ":help", ":quit",
}

// session is the state of an interactive shell: the loaded records and
// the query settings applied to each filter entered.
type session struct {
	records []query.Value
	q       *logquery.LogQuery
	output  string
	out     io.Writer
	load    func(paths []string) ([]query.Value, error)
}

func newSession(records []query.Value, out io.Writer, load func([]string) ([]query.Value, error)) *session {
	return &session{records: records, q: logquery.New(), output: "json", out: out, load: load}
}

// exec runs one input line. It reports whether the shell should exit.
func (s *session) exec(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, s.run(line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":quit", ":exit", ":q":
		return true, nil
	case ":help":
		fmt.Fprintln(s.out, shellHelp)
	case ":order":
		if arg == "none" {
			arg = ""
		}
		o, err := logquery.ParseOrder(arg)
		if err != nil {
			return false, err
		}
		s.q.Order = o
	case ":by":
		if arg == "" {
			arg = logquery.DefaultOrderBy
		}
		s.q.OrderBy = arg
	case ":limit", ":start":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return false, fmt.Errorf("%s needs a non-negative integer", name)
		}
		if name == ":limit" {
			s.q.Limit = n
		} else {
			s.q.Start = n
		}
	case ":levels":
		s.q.Levels = splitList(arg)
	case ":fields":
		s.q.Fields = splitList(arg)
	case ":search":
		if arg == "" {
			s.q.Search = nil
			break
		}
		re, err := regexp.Compile(arg)
		if err != nil {
			return false, err
		}
		s.q.Search = re
	case ":output":
		if !isOutputFormat(arg) {
			return false, fmt.Errorf("unknown output format %q", arg)
		}
		s.output = arg
	case ":show":
		spec, err := s.q.ToSpec()
		if err != nil {
			return false, err
		}
		spec.Filter = query.Null()
		data, err := json.Marshal(spec)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s\n", data)
	case ":reset":
		s.q = logquery.New()
		s.output = "json"
	case ":load":
		paths := strings.Fields(arg)
		if len(paths) == 0 {
			return false, errors.New(":load needs at least one file")
		}
		records, err := s.load(paths)
		if err != nil {
			return false, err
		}
		s.records = append(s.records, records...)
		fmt.Fprintf(s.out, "loaded %d records (%d total)\n", len(records), len(s.records))
	case ":count":
		fmt.Fprintln(s.out, len(s.records))
	default:
		return false, fmt.Errorf("unknown command %s (try :help)", name)
	}
	return false, nil
}

func (s *session) run(doc string) error {
	v, err := parseDocument([]byte(doc), "")
	if err != nil {
		return err
	}
	n, err := query.Decode(v)
	if err != nil {
		return err
	}
	q := *s.q
	q.Filter = n
	results := q.Apply(s.records)
	if err := writeRecords(s.out, results, s.output); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "(%d of %d records)\n", len(results), len(s.records))
	return nil
}

func (s *session) complete(line string) []string {
	if !strings.HasPrefix(line, ":") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range shellCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

func isOutputFormat(s string) bool {
	for _, f := range outputFormats {
		if f == s {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bunlog_history")
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [file...]",
		Short: "Interactively query log records",
		Long:  "Loads JSON-lines records from the given files and reads filter documents\nfrom a prompt.\n\n" + shellHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			load := func(paths []string) ([]query.Value, error) {
				return loadRecords(ctx, paths, cmd.InOrStdin())
			}
			var records []query.Value
			if len(args) > 0 {
				var err error
				if records, err = load(args); err != nil {
					return err
				}
			}
			s := newSession(records, cmd.OutOrStdout(), load)
			return s.loop()
		},
	}
}

func (s *session) loop() error {
	l := liner.NewLiner()
	defer l.Close()
	l.SetCtrlCAborts(true)
	l.SetCompleter(s.complete)

	hist := historyPath()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			l.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintf(s.out, "bunlog shell, %d records loaded. :help for help.\n", len(s.records))
	for {
		line, err := l.Prompt("bunlog> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			l.AppendHistory(line)
		}
		quit, err := s.exec(line)
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
		if quit {
			break
		}
	}

	if hist != "" {
		if f, err := os.Create(hist); err == nil {
			l.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}
