package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kartikbazzad/bunbase/bunlog/internal/config"
	"github.com/kartikbazzad/bunbase/bunlog/internal/logger"
	"github.com/kartikbazzad/bunbase/bunlog/internal/server"
	"github.com/kartikbazzad/bunbase/bunlog/query"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

type pipeFlags struct {
	store    config.Store
	level    string
	minLevel string
	json     bool
	echo     bool
}

func newPipeCmd() *cobra.Command {
	var f pipeFlags
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Store log lines read from stdin",
		Long: `Reads stdin line by line and appends each line to a log store:

  myserver 2>&1 | bunlog pipe --path server.log.zst

Plain lines become entries with the --level level. With --json each line
is parsed as an entry object ({"level", "message", "timestamp", ...});
lines that are not JSON objects are stored as plain messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := f.open(cmd)
			if err != nil {
				return err
			}
			copyErr := f.copy(cmd.InOrStdin(), t)
			return errors.Join(copyErr, t.Close())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.store.Kind, "store", "file", "Store kind: file or sqlite")
	fl.StringVar(&f.store.Path, "path", "", "Store path (\".zst\" files are compressed)")
	fl.StringVar(&f.level, "level", transport.DefaultWriterLevel, "Level given to plain lines")
	fl.StringVar(&f.minLevel, "min-level", "", "Drop entries less severe than this level")
	fl.BoolVar(&f.json, "json", false, "Parse lines as JSON entries")
	fl.BoolVar(&f.echo, "echo", false, "Also print entries to stderr")
	cmd.MarkFlagRequired("path")
	return cmd
}

// open builds the transport chain: an optional level filter in front of
// the store, fanned out to a stderr echo when asked, all behind a
// background goroutine so reading stdin never waits on the disk.
func (f *pipeFlags) open(cmd *cobra.Command) (*transport.ThreadedTransport, error) {
	if f.store.Kind != "file" && f.store.Kind != "sqlite" {
		return nil, fmt.Errorf("unsupported store %q (want file or sqlite)", f.store.Kind)
	}
	log := logger.Get()
	store, err := server.OpenStore(f.store, log)
	if err != nil {
		return nil, err
	}

	var sink transport.Transport = store
	if f.echo {
		echo := transport.NewZapTransport(echoLogger(cmd.ErrOrStderr()))
		fan, err := transport.NewFanout(log, store, echo)
		if err != nil {
			store.Close()
			return nil, err
		}
		sink = fan
	}
	if f.minLevel != "" {
		lf, err := transport.NewLevelFilter(sink, f.minLevel)
		if err != nil {
			transport.Close(sink)
			return nil, err
		}
		sink = lf
	}
	return transport.NewThreadedTransport(sink, log), nil
}

func (f *pipeFlags) copy(r io.Reader, t transport.Transport) error {
	if !f.json {
		w := transport.NewTransportWriter(t, f.level)
		_, err := io.Copy(w, r)
		return errors.Join(err, w.Close())
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		t.Log(f.entry(line))
	}
	return sc.Err()
}

// entry parses a JSON entry line, falling back to a plain message.
// Entries without a level or timestamp get the --level level and the
// current time.
func (f *pipeFlags) entry(line []byte) transport.Entry {
	if v, err := query.ParseJSON(line); err == nil && v.Kind() == query.KindObject {
		if e, err := transport.EntryFromValue(v); err == nil {
			if e.Level == "" {
				e.Level = f.level
			}
			if e.Time.IsZero() {
				e.Time = time.Now()
			}
			return e
		}
	}
	return transport.NewEntry(f.level, string(line))
}

// echoLogger writes human-readable entries to w. The writer is wrapped so
// Sync is a no-op, which terminals and pipes do not support.
func echoLogger(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(struct{ io.Writer }{w})),
		zapcore.DebugLevel,
	)
	return zap.New(core)
}
