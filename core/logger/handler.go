package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

type field struct {
	key string
	val any
}

// structuredHandler writes one line per record. Keys follow keyOrder, then the
// rest alphabetically, so the same event always renders the same way.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset []field
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, key := range cfg.keyOrder {
		if _, dup := rank[key]; !dup {
			rank[key] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

// Enabled reports whether records at level are written.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle renders r together with the ids carried by ctx.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	isJSON := h.cfg.format == formatJSON

	fields := make(map[string]any, 16+len(h.preset))
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = r.Level.String()
	if isJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.preset {
		fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.prefix, a, func(f field) { fields[f.key] = f.val })
		return true
	})
	addContextFields(ctx, fields)
	finish(fields, r.Message, isJSON)

	line, err := h.encode(fields)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

// WithAttrs returns a handler that adds attrs, under the current group, to every record.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = slices.Clone(h.preset)
	for _, a := range attrs {
		collect(h.prefix, a, func(f field) { clone.preset = append(clone.preset, f) })
	}
	return &clone
}

// WithGroup returns a handler that prefixes later keys with name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// collect flattens groups into dotted keys and normalizes values.
func collect(prefix string, a slog.Attr, emit func(field)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			collect(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if f, ok := normalizeValue(key, v); ok {
		emit(f)
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func normalizeValue(key string, v slog.Value) (field, bool) {
	switch v.Kind() {
	case slog.KindString:
		return field{key, strings.TrimSpace(v.String())}, true
	case slog.KindBool:
		return field{key, v.Bool()}, true
	case slog.KindInt64:
		return field{key, v.Int64()}, true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return field{key, int64(u)}, true
		}
		return field{key, v.Uint64()}, true
	case slog.KindFloat64:
		return field{key, v.Float64()}, true
	case slog.KindDuration:
		return field{durationKey(key), RoundMS(v.Duration()).Milliseconds()}, true
	case slog.KindTime:
		return field{key, v.Time().UTC().Format(time.RFC3339Nano)}, true
	}
	switch x := v.Any().(type) {
	case nil:
		return field{}, false
	case error:
		return field{key, x.Error()}, true
	case time.Duration:
		return field{durationKey(key), RoundMS(x).Milliseconds()}, true
	case fmt.Stringer:
		return field{key, x.String()}, true
	case []string:
		return field{key, strings.Join(x, ",")}, true
	default:
		return field{key, fmt.Sprint(x)}, true
	}
}

// durationKey renames duration attributes so every duration lands in a *_ms field.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return key + "_ms"
	case !strings.HasSuffix(key, "_ms"):
		return key + "_ms"
	}
	return key
}

// finish fills defaults, compacts the rid and normalizes the enumerated fields.
func finish(fields map[string]any, msg string, isJSON bool) {
	if rid, _ := fields["rid"].(string); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if _, seen := fields["rid_full"]; isJSON && !seen {
				fields["rid_full"] = rid
			}
			fields["rid"] = compact
		}
	}
	if ev, _ := fields["event"].(string); ev == "" {
		fields["event"] = cmp.Or(msg, "unknown")
	}
	if comp, _ := fields["component"].(string); comp == "" {
		fields["component"] = CompApp
	}
	if lvl, ok := fields["level"].(string); ok {
		fields["level"] = normalizeLevel(lvl)
	}
	if s, _ := fields["status"].(string); s != "" {
		fields["status"], _ = normalizeStatus(s)
	}
	if o, _ := fields["outcome"].(string); o != "" {
		if norm, ok := normalizeOutcome(o); ok {
			fields["outcome"] = norm
		} else {
			delete(fields, "outcome")
		}
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}
}

func (h *structuredHandler) orderedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	last := len(h.cfg.keyOrder)
	rankOf := func(k string) int {
		if r, ok := h.rank[k]; ok {
			return r
		}
		return last
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(cmp.Compare(rankOf(a), rankOf(b)), strings.Compare(a, b))
	})
	return keys
}

func (h *structuredHandler) encode(fields map[string]any) ([]byte, error) {
	keys := h.orderedKeys(fields)
	var b strings.Builder
	if h.cfg.format != formatJSON {
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(formatValueKV(fields[k]))
		}
		return []byte(b.String()), nil
	}
	b.WriteByte('{')
	for i, k := range keys {
		data, err := sonic.ConfigStd.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func formatValueKV(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

func addContextFields(ctx context.Context, fields map[string]any) {
	if ctx == nil {
		return
	}
	set := func(key string, v any, present bool) {
		if !present {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}
	rid := RIDFrom(ctx)
	set("rid", rid, rid != "")
	uid := UserIDFrom(ctx)
	set("user_id", uid, uid != 0)
	updateID := UpdateIDFrom(ctx)
	set("update_id", updateID, updateID != 0)
	cid := ChatIDFrom(ctx)
	set("chat_id", cid, cid != 0)
	handler := HandlerFrom(ctx)
	set("handler", handler, handler != "")
	flowID, renderID := RenderFrom(ctx)
	set("flow_id", flowID, flowID != "")
	set("render_id", renderID, renderID != "")
}
