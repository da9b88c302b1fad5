package core

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cast"

	"mdtcore/pkg/domain"
)

// OptOwner names the option controlling attachment. Absent means the
// kind's natural parent; present with a nil value skips attachment.
const OptOwner = "owner"

// Options is the optional configuration bag of a builder call. Values may be
// literals, display names of entities, or entity handles.
type Options map[string]any

// Has reports whether key was supplied, even with a nil value.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Get returns the raw value for key.
func (o Options) Get(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

// With returns a copy of o with key set.
func (o Options) With(key string, value any) Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[key] = value
	return out
}

// Owner reports the explicit owner. explicit is false when the option was
// not supplied; owner is nil with explicit true when attachment is skipped.
func (o Options) Owner() (owner any, explicit bool) {
	v, ok := o[OptOwner]
	if !ok {
		return nil, false
	}
	if isNil(v) {
		return nil, true
	}
	return v, true
}

// List returns the value for key as a list. A scalar is a one-element list.
func (o Options) List(key string) []any {
	v, ok := o[key]
	if !ok || v == nil {
		return nil
	}
	return AsList(v)
}

// AsList normalizes scalars and slices of any element type into []any.
func AsList(v any) []any {
	if v == nil {
		return nil
	}
	if t, ok := v.([]any); ok {
		return t
	}
	if list, err := cast.ToSliceE(v); err == nil {
		return list
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, domain.OptionError{Option: key, Err: err}
	}
	return f, nil
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, domain.OptionError{Option: key, Err: err}
	}
	return n, nil
}

func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, err := toString(v)
	if err != nil {
		return "", domain.OptionError{Option: key, Err: err}
	}
	return s, nil
}

func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	b, err := toBool(v)
	if err != nil {
		return false, domain.OptionError{Option: key, Err: err}
	}
	return b, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidOption}, args...)...)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case bool:
		return 0, invalid("%T is not a number", v)
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, invalid("empty string is not a number")
		}
		v = t
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, invalid("%v is not a number", v)
	}
	return f, nil
}

func toInt(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, invalid("%v is not an integer", v)
	case f != math.Trunc(f):
		return 0, invalid("%v is not an integer", v)
	case f < math.MinInt || f >= math.MaxInt:
		return 0, invalid("%v overflows int", v)
	}
	return int(f), nil
}

func toString(v any) (string, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", invalid("%T is not a string", v)
	}
	return s, nil
}

func toBool(v any) (bool, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, invalid("%v is not a boolean", v)
	}
	return b, nil
}

// toPair reads two numbers from a list or from a map under the given keys.
func toPair(v any, k1, k2 string) (float64, float64, error) {
	switch t := v.(type) {
	case map[string]any:
		a, err := toFloat(orZero(t[k1]))
		if err != nil {
			return 0, 0, err
		}
		b, err := toFloat(orZero(t[k2]))
		if err != nil {
			return 0, 0, err
		}
		return a, b, nil
	}
	list := AsList(v)
	if len(list) != 2 {
		return 0, 0, invalid("expected two values, got %d", len(list))
	}
	a, err := toFloat(list[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := toFloat(list[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func orZero(v any) any {
	if v == nil {
		return 0.0
	}
	return v
}

func toPoint(v any) (domain.Point, error) {
	if p, ok := v.(domain.Point); ok {
		return p, nil
	}
	x, y, err := toPair(v, "x", "y")
	return domain.Point{X: x, Y: y}, err
}

func toSize(v any) (domain.Size, error) {
	if s, ok := v.(domain.Size); ok {
		return s, nil
	}
	w, h, err := toPair(v, "width", "height")
	return domain.Size{Width: w, Height: h}, err
}

func toComplex(v any) (domain.Complex, error) {
	switch c := v.(type) {
	case domain.Complex:
		return c, nil
	case complex128:
		return domain.Complex{Real: real(c), Imaginary: imag(c)}, nil
	case float64, int:
		f, _ := toFloat(c)
		return domain.Complex{Real: f}, nil
	}
	re, im, err := toPair(v, "real", "imaginary")
	return domain.Complex{Real: re, Imaginary: im}, err
}

func toFloats(v any) ([]float64, error) {
	if f, ok := v.([]float64); ok {
		return append([]float64(nil), f...), nil
	}
	list := AsList(v)
	out := make([]float64, 0, len(list))
	for _, item := range list {
		f, err := toFloat(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

var namedColors = map[string]domain.Color{
	"black":  {A: 255},
	"white":  {R: 255, G: 255, B: 255, A: 255},
	"red":    {R: 255, A: 255},
	"green":  {G: 128, A: 255},
	"lime":   {G: 255, A: 255},
	"blue":   {B: 255, A: 255},
	"yellow": {R: 255, G: 255, A: 255},
	"orange": {R: 255, G: 165, A: 255},
	"purple": {R: 128, B: 128, A: 255},
	"gray":   {R: 128, G: 128, B: 128, A: 255},
	"empty":  {},
}

// toColor accepts a Color, a known color name, "#rrggbb[aa]" or a list of
// three or four channel values.
func toColor(v any) (domain.Color, error) {
	switch c := v.(type) {
	case domain.Color:
		return c, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(c))
		if named, ok := namedColors[s]; ok {
			return named, nil
		}
		if strings.HasPrefix(s, "#") {
			raw, err := hex.DecodeString(s[1:])
			if err == nil && (len(raw) == 3 || len(raw) == 4) {
				col := domain.Color{R: raw[0], G: raw[1], B: raw[2], A: 255}
				if len(raw) == 4 {
					col.A = raw[3]
				}
				return col, nil
			}
		}
		return domain.Color{}, invalid("unknown color %q", c)
	}
	list := AsList(v)
	if len(list) != 3 && len(list) != 4 {
		return domain.Color{}, invalid("color needs 3 or 4 channels, got %d", len(list))
	}
	ch := make([]uint8, 4)
	ch[3] = 255
	for i, item := range list {
		n, err := toInt(item)
		if err != nil || n < 0 || n > 255 {
			return domain.Color{}, invalid("color channel %v out of range", item)
		}
		ch[i] = uint8(n)
	}
	return domain.Color{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

func toFont(v any) (domain.Font, error) {
	switch f := v.(type) {
	case domain.Font:
		return f, nil
	case string:
		return domain.Font{Family: f, Size: 8.25}, nil
	case map[string]any:
		font := domain.Font{Size: 8.25}
		if fam, ok := f["family"]; ok {
			s, err := toString(fam)
			if err != nil {
				return domain.Font{}, err
			}
			font.Family = s
		}
		if size, ok := f["size"]; ok {
			n, err := toFloat(size)
			if err != nil {
				return domain.Font{}, err
			}
			font.Size = n
		}
		if bold, ok := f["bold"]; ok {
			b, err := toBool(bold)
			if err != nil {
				return domain.Font{}, err
			}
			font.Bold = b
		}
		return font, nil
	}
	return domain.Font{}, invalid("%T is not a font", v)
}

func toFragility(v any) (domain.FragilityCurve, error) {
	if f, ok := v.(domain.FragilityCurve); ok {
		return f, nil
	}
	m, d, err := toPair(v, "median", "dispersion")
	return domain.FragilityCurve{Median: m, Dispersion: d}, err
}

// toEnum parses v with parse unless it already has the enum type.
func toEnum[T ~string](v any, parse func(string) (T, error)) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	s, err := toString(v)
	if err != nil {
		var zero T
		return zero, err
	}
	return parse(s)
}

// optionKey maps a facet or collection name to its option key,
// "MissionFunctions" to "mission_functions".
func optionKey(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedOptionKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
