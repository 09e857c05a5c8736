package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI colors (Everforest Dark)
const (
	colorReset     = "\x1b[0m"
	colorBold      = "\x1b[1m"
	colorFg        = "\x1b[38;5;223m"
	colorTime      = "\x1b[38;5;107m"
	colorID        = "\x1b[38;5;109m"
	colorNumber    = "\x1b[38;5;108m"
	colorKey       = "\x1b[38;5;65m"
	colorComponent = "\x1b[38;5;208m"
	colorWarn      = "\x1b[38;5;179m"
	colorWarnBg    = "\x1b[48;5;58m"
	colorError     = "\x1b[38;5;167m"
	colorErrorBg   = "\x1b[48;5;52m"
)

// idFields are rendered in the id color so a run can be followed by eye
var idFields = map[string]bool{
	FieldJobID:      true,
	FieldSpeciesID:  true,
	FieldCondParams: true,
	FieldGeneID:     true,
	FieldBatch:      true,
}

var bufferPool = buffer.NewPool()

// consoleEncoder writes one compact line per entry:
//
//	13:04:35  WARN  j.species  Species rolled back  species_id=9606 state=rollback
//
// Fields added through With are kept in the embedded map encoder, so context
// such as species_id survives across child loggers.
type consoleEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newConsoleEncoder(color bool) *consoleEncoder {
	return &consoleEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	clone := newConsoleEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *consoleEncoder) paint(color, s string) string {
	if !enc.color || s == "" {
		return s
	}
	return color + s + colorReset
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	all := enc.Clone().(*consoleEncoder)
	for _, f := range fields {
		f.AddTo(all.MapObjectEncoder)
	}

	line := bufferPool.Get()
	line.AppendString(enc.paint(colorTime, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel {
		line.AppendString("  ")
		line.AppendString(enc.level(ent.Level))
	}

	if ent.LoggerName != "" {
		line.AppendString("  ")
		line.AppendString(enc.paint(colorComponent, abbreviateName(ent.LoggerName)))
	}

	line.AppendString("  ")
	line.AppendString(enc.paint(colorFg, ent.Message))

	if rendered := all.renderFields(); rendered != "" {
		line.AppendString("  ")
		line.AppendString(rendered)
	}

	if ent.Stack != "" && ent.Level >= zapcore.ErrorLevel {
		line.AppendString("\n")
		line.AppendString(ent.Stack)
	}
	line.AppendString("\n")
	return line, nil
}

func (enc *consoleEncoder) level(l zapcore.Level) string {
	name := l.CapitalString()
	if !enc.color {
		return name
	}
	switch {
	case l == zapcore.WarnLevel:
		return colorBold + colorWarnBg + colorWarn + name + colorReset
	case l >= zapcore.ErrorLevel:
		return colorBold + colorErrorBg + colorError + name + colorReset
	default:
		return colorKey + name + colorReset
	}
}

// renderFields prints key=value pairs, ids first then the rest by key
func (enc *consoleEncoder) renderFields() string {
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		// cockroachdb errors also emit a verbose form with the full stack
		if strings.HasSuffix(k, "Verbose") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if idFields[keys[i]] != idFields[keys[j]] {
			return idFields[keys[i]]
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprintf("%v", enc.Fields[k])
		switch {
		case idFields[k]:
			value = enc.paint(colorID, value)
		case isNumber(enc.Fields[k]):
			value = enc.paint(colorNumber, value)
		}
		parts = append(parts, enc.paint(colorKey, k+"=")+value)
	}
	return strings.Join(parts, " ")
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// abbreviateName shortens the first segment: pipeline.writer -> p.writer
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}
