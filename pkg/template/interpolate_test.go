package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func scope() map[string]any {
	return map[string]any{
		"company": "Acme",
		"triggerData": map[string]any{
			"email":  "a@b.com",
			"amount": 1500,
			"items":  []any{map[string]any{"sku": "X-1"}, map[string]any{"sku": "Y-2"}},
			"flag":   true,
			"ratio":  0.25,
		},
		"lookup": map[string]any{"customer": map[string]any{"name": "Jane"}},
	}
}

func TestInterpolate_TriggerData(t *testing.T) {
	t.Parallel()

	got := Interpolate(map[string]any{"to": "{{triggerData.email}}"}, scope())

	assert.Equal(t, map[string]any{"to": "a@b.com"}, got)
}

func TestInterpolate_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{name: "embedded", input: "Dear {{ lookup.customer.name }}, from {{company}}", want: "Dear Jane, from Acme"},
		{name: "whole placeholder keeps type", input: "{{triggerData.amount}}", want: 1500},
		{name: "whole placeholder bool", input: "{{ triggerData.flag }}", want: true},
		{name: "embedded number", input: "total={{triggerData.amount}} r={{triggerData.ratio}}", want: "total=1500 r=0.25"},
		{name: "slice index", input: "{{triggerData.items.1.sku}}", want: "Y-2"},
		{name: "missing path", input: "{{triggerData.phone}}", want: ""},
		{name: "missing embedded", input: "call {{triggerData.phone}} now", want: "call  now"},
		{name: "out of range index", input: "{{triggerData.items.9.sku}}", want: ""},
		{name: "through a scalar", input: "{{company.name}}", want: ""},
		{name: "go template left alone", input: "{{ .company }}", want: "{{ .company }}"},
		{name: "no placeholders", input: "plain", want: "plain"},
		{name: "non-string leaf", input: 42, want: 42},
		{name: "nil leaf", input: nil, want: nil},
		{
			name:  "nested structures",
			input: map[string]any{"list": []any{"{{company}}", 7, map[string]any{"who": "{{lookup.customer.name}}"}}},
			want:  map[string]any{"list": []any{"Acme", 7, map[string]any{"who": "Jane"}}},
		},
		{
			name:  "embedded object is json",
			input: "customer={{lookup.customer}}",
			want:  `customer={"name":"Jane"}`,
		},
		{
			name:  "string map headers",
			input: map[string]string{"X-Company": "{{company}}"},
			want:  map[string]any{"X-Company": "Acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Interpolate(tt.input, scope()))
		})
	}
}

func TestInterpolate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	config := map[string]any{"to": "{{triggerData.email}}", "cc": []any{"{{company}}"}}
	_ = Interpolate(config, scope())

	assert.Equal(t, "{{triggerData.email}}", config["to"])
	assert.Equal(t, []any{"{{company}}"}, config["cc"])
}

func TestInterpolateMap_Nil(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{}, InterpolateMap(nil, scope()))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	v, ok := Lookup(scope(), "triggerData.items.0.sku")
	require.True(t, ok)
	assert.Equal(t, "X-1", v)

	_, ok = Lookup(scope(), "triggerData.items.-1")
	assert.False(t, ok)

	_, ok = Lookup(scope(), "nope")
	assert.False(t, ok)
}

func TestInterpolate_ValuesWithPlaceholderTextExpandOnNextPass(t *testing.T) {
	t.Parallel()

	data := map[string]any{"triggerData": map[string]any{"note": "{{triggerData.secret}}", "secret": "s3"}}

	once := Interpolate("x {{triggerData.note}}", data)
	assert.Equal(t, "x {{triggerData.secret}}", once)
	assert.Equal(t, "x s3", Interpolate(once, data))
}

func TestHasPlaceholders(t *testing.T) {
	t.Parallel()

	assert.True(t, HasPlaceholders("x {{a.b}}"))
	assert.False(t, HasPlaceholders("x {{ .a }}"))
	assert.False(t, HasPlaceholders("5 minutes"))
}

// Idempotence holds for inputs whose resolved values are free of placeholder
// text; triggerData.note, which may hold such text, is never referenced below.
func TestInterpolate_Idempotent(t *testing.T) {
	t.Parallel()

	keys := []string{"a", "b", "c", "triggerData"}

	rapid.Check(t, func(t *rapid.T) {
		data := map[string]any{}
		for _, key := range keys[:3] {
			if rapid.Bool().Draw(t, "has_"+key) {
				if rapid.Bool().Draw(t, "numeric_"+key) {
					data[key] = rapid.IntRange(-1000, 1000).Draw(t, "int_"+key)
				} else {
					data[key] = rapid.StringMatching(`[a-zA-Z0-9 .@]{0,10}`).Draw(t, "str_"+key)
				}
			}
		}

		note := rapid.SampledFrom([]string{"plain", "{{a}}", "x {{triggerData.email}}"}).Draw(t, "note")
		data["triggerData"] = map[string]any{
			"email": rapid.StringMatching(`[a-z]{1,5}@[a-z]{1,5}\.com`).Draw(t, "email"),
			"note":  note,
		}

		// values holding placeholder text are inserted as-is, not expanded
		if got := Interpolate("{{triggerData.note}}", data); got != note {
			t.Fatalf("value %q was re-expanded to %#v", note, got)
		}

		fragments := rapid.SliceOfN(rapid.OneOf(
			rapid.StringMatching(`[a-z :/-]{0,6}`),
			rapid.SampledFrom([]string{"{{a}}", "{{ b }}", "{{c}}", "{{missing}}", "{{triggerData.email}}", "{{a.deep}}"}),
		), 0, 6).Draw(t, "fragments")

		input := strings.Join(fragments, "")

		once := Interpolate(input, data)
		twice := Interpolate(once, data)

		if !assert.ObjectsAreEqual(once, twice) {
			t.Fatalf("interpolation not idempotent for %q: %#v then %#v", input, once, twice)
		}
	})
}
