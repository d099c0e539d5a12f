package stencil

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func compileSlots(t *testing.T, src string) *Template {
	t.Helper()

	tmpl, err := Compile("test.html", src, nil)
	if err != nil {
		t.Fatalf("Unexpected error compiling %q: %s", src, err)
	}
	return tmpl
}

func TestBindSlotsFillsSubset(t *testing.T) {
	t.Parallel()

	for slots := 0; slots <= 5; slots++ {
		var src strings.Builder
		for pos := range slots {
			fmt.Fprintf(&src, `{%% slot "s%d" %%}default{%% endslot %%}`, pos)
		}
		tmpl := compileSlots(t, src.String())
		for fills := 0; fills <= slots; fills++ {
			var content []fillContent
			for pos := range fills {
				content = append(content, fillContent{name: fmt.Sprintf("s%d", pos)})
			}
			binding, err := bindSlots("comp", tmpl, content)
			if err != nil {
				t.Errorf("Unexpected error binding %d fills to %d slots: %s", fills, slots, err)
				continue
			}
			if binding.Len() != fills {
				t.Errorf("Expected %d bound fills for %d slots, got %d", fills, slots, binding.Len())
			}
			for pos := range slots {
				name := fmt.Sprintf("s%d", pos)
				if filled := binding.Filled(name, tmpl); filled != (pos < fills) {
					t.Errorf("Expected slot %s filled to be %v with %d fills, got %v", name, pos < fills, fills, filled)
				}
			}
		}
	}
}

func TestCompileRejectsBadSlots(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`{% slot "a" default %}{% endslot %}{% slot "b" default %}{% endslot %}`: `only one slot may be marked 'default', found "a" and "b"`,
		`{% slot "a" %}{% endslot %}{% slot "a" %}{% endslot %}`:                 `"a" appears more than once`,
		`{% fill "a" %}{% endfill %}`:                                            "fill tag must be placed directly inside a component",
		`{% component "c" %}{% fill "a" %}{% endfill %}text{% endcomponent %}`:   `component "c": component body must hold either only fill tags`,
		`{% component comp %}{% fill "a" %}{% endfill %}text{% endcomponent %}`:  `component "comp": component body must hold`,
	}
	for src, msg := range cases {
		_, err := Compile("test.html", src, nil)
		if !errors.Is(err, ErrSlot) {
			t.Errorf("Expected compiling %q to fail with ErrSlot, got %v", src, err)
			continue
		}
		if !strings.Contains(err.Error(), msg) {
			t.Errorf("Expected compiling %q to fail mentioning %q, got %q", src, msg, err)
		}
	}
}

func TestBindSlotsErrors(t *testing.T) {
	t.Parallel()

	type testCase struct {
		src        string
		fills      []fillContent
		slot       string
		msg        string
		suggestion string
	}
	cases := map[string]testCase{
		"required": {
			src:  `{% slot "header" required %}{% endslot %}{% slot "body" %}{% endslot %}`,
			slot: "header",
			msg:  `slot "header" is marked as 'required', yet no fill was provided for it`,
		},
		"required with typo": {
			src:        `{% slot "header" required %}{% endslot %}`,
			fills:      []fillContent{{name: "haeder"}},
			slot:       "header",
			msg:        "Fills that matched no slot: 'haeder'. Did you mean 'header'?",
			suggestion: "header",
		},
		"undefined slot": {
			src:        `{% slot "header" %}{% endslot %}{% slot "footer" %}{% endslot %}`,
			fills:      []fillContent{{name: "footr"}},
			slot:       "footr",
			msg:        `passed a fill for undefined slot "footr". Unfilled slot names are: ['header', 'footer']. Did you mean 'footer'?`,
			suggestion: "footer",
		},
		"undefined slot without suggestion": {
			src:   `{% slot "header" %}{% endslot %}`,
			fills: []fillContent{{name: "sidebar"}},
			slot:  "sidebar",
			msg:   `passed a fill for undefined slot "sidebar". Unfilled slot names are: ['header']`,
		},
		"default content without default slot": {
			src:   `{% slot "header" %}{% endslot %}`,
			fills: []fillContent{{}},
			msg:   "none of its slots is marked as 'default'",
		},
		"duplicate fill": {
			src:   `{% slot "header" %}{% endslot %}`,
			fills: []fillContent{{name: "header"}, {name: "header"}},
			slot:  "header",
			msg:   `multiple fill tags cannot target the same slot "header"`,
		},
		"default content and default fill": {
			src:   `{% slot "body" default %}{% endslot %}`,
			fills: []fillContent{{}, {name: "default"}},
			slot:  "body",
			msg:   `multiple fill tags cannot target the same slot "body"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl := compileSlots(t, tc.src)
			binding, err := bindSlots("card", tmpl, tc.fills)
			if binding != nil {
				t.Errorf("Expected no binding on error, got %d fills", binding.Len())
			}
			var slotErr *SlotError
			if !errors.As(err, &slotErr) {
				t.Fatalf("Expected a *SlotError, got %v", err)
			}
			if slotErr.Component != "card" {
				t.Errorf("Expected error to name component card, got %q", slotErr.Component)
			}
			if slotErr.Slot != tc.slot {
				t.Errorf("Expected error to name slot %q, got %q", tc.slot, slotErr.Slot)
			}
			if !strings.Contains(slotErr.Msg, tc.msg) {
				t.Errorf("Expected error to mention %q, got %q", tc.msg, slotErr.Msg)
			}
			if slotErr.Suggestion != tc.suggestion {
				t.Errorf("Expected suggestion %q, got %q", tc.suggestion, slotErr.Suggestion)
			}
		})
	}
}

func TestBindSlotsDefault(t *testing.T) {
	t.Parallel()

	tmpl := compileSlots(t, `{% slot "header" %}{% endslot %}{% slot "body" default %}{% endslot %}`)
	for _, fills := range [][]fillContent{{{}}, {{name: "default"}}, {{name: "body"}}} {
		binding, err := bindSlots("card", tmpl, fills)
		if err != nil {
			t.Errorf("Unexpected error: %s", err)
			continue
		}
		if !binding.Filled("body", tmpl) || binding.Filled("header", tmpl) {
			t.Errorf("Expected only the default slot to be filled by %+v", fills)
		}
	}
}

func TestSlotBindingLifecycle(t *testing.T) {
	t.Parallel()

	tmpl := compileSlots(t, `{% slot "a" %}{% endslot %}`)
	binding, err := bindSlots("card", tmpl, []fillContent{{name: "a"}})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := binding.release(); !errors.Is(err, ErrSchedulerInvariant) {
		t.Errorf("Expected releasing a bound binding to fail, got %v", err)
	}
	if err := binding.consume(); err != nil {
		t.Fatalf("Unexpected error consuming: %s", err)
	}
	if _, ok := binding.get("a", tmpl); !ok {
		t.Error("Expected a consumed binding to still serve its fills")
	}
	if err := binding.release(); err != nil {
		t.Fatalf("Unexpected error releasing: %s", err)
	}
	if _, ok := binding.get("a", tmpl); ok {
		t.Error("Expected a released binding to serve no fills")
	}
	if err := binding.consume(); !errors.Is(err, ErrSchedulerInvariant) {
		t.Errorf("Expected consuming a released binding to fail, got %v", err)
	}
}

func TestClosestName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		names, candidates []string
		expected          string
	}{
		{names: []string{"haeder"}, candidates: []string{"header", "footer"}, expected: "header"},
		{names: []string{"bdy"}, candidates: []string{"body"}, expected: "body"},
		{names: []string{"sidebar"}, candidates: []string{"header"}, expected: ""},
		{names: nil, candidates: []string{"header"}, expected: ""},
	}
	for _, tc := range cases {
		if got := closestName(tc.names, tc.candidates); got != tc.expected {
			t.Errorf("Expected closest name to %v in %v to be %q, got %q", tc.names, tc.candidates, tc.expected, got)
		}
	}
}
