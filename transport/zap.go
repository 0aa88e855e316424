package transport

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kartikbazzad/bunbase/bunlog/query"
)

// ZapCore is a zapcore.Core that writes to a Transport, so a *zap.Logger
// can log through any sink in this package:
//
//	logger := zap.New(transport.NewZapCore(t, zapcore.InfoLevel))
type ZapCore struct {
	zapcore.LevelEnabler
	t      Transport
	fields []zapcore.Field
}

func NewZapCore(t Transport, enab zapcore.LevelEnabler) *ZapCore {
	return &ZapCore{LevelEnabler: enab, t: t}
}

func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *ZapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ZapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if ent.LoggerName != "" {
		enc.AddString("logger", ent.LoggerName)
	}
	if ent.Caller.Defined {
		enc.AddString("caller", ent.Caller.TrimmedPath())
	}

	c.t.Log(Entry{
		Level:   zapToLevel(ent.Level),
		Message: ent.Message,
		Time:    ent.Time,
		Meta:    metaFromMap(enc.Fields),
	})
	return nil
}

// Sync flushes the transport.
func (c *ZapCore) Sync() error {
	return Flush(c.t)
}

func metaFromMap(fields map[string]any) query.Value {
	if len(fields) == 0 {
		return query.Null()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	members := make([]query.Member, 0, len(keys))
	for _, k := range keys {
		v, err := query.FromGo(fields[k])
		if err != nil {
			v = query.String(fmt.Sprint(fields[k]))
		}
		members = append(members, query.Member{Key: k, Value: v})
	}
	return query.Object(members...)
}

func zapToLevel(l zapcore.Level) string {
	switch {
	case l >= zapcore.ErrorLevel:
		return "error"
	case l == zapcore.WarnLevel:
		return "warn"
	case l == zapcore.InfoLevel:
		return "info"
	default:
		return "debug"
	}
}

func levelToZap(level string) zapcore.Level {
	sev, ok := Severity(level)
	if !ok {
		return zapcore.InfoLevel
	}
	switch Levels[sev] {
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "info", "http":
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ZapTransport forwards entries to a *zap.Logger, keeping their original
// time. Meta fields become zap fields.
type ZapTransport struct {
	logger *zap.Logger
}

func NewZapTransport(logger *zap.Logger) *ZapTransport {
	return &ZapTransport{logger: logger}
}

func (t *ZapTransport) Log(e Entry) {
	ce := t.logger.Check(levelToZap(e.Level), e.Message)
	if ce == nil {
		return
	}
	if !e.Time.IsZero() {
		ce.Time = e.Time
	}
	members := e.Meta.Members()
	fields := make([]zap.Field, 0, len(members))
	for _, m := range members {
		fields = append(fields, zap.Any(m.Key, m.Value.ToGo()))
	}
	ce.Write(fields...)
}

// Flush syncs the logger.
func (t *ZapTransport) Flush() error {
	return t.logger.Sync()
}
