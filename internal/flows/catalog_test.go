package flows

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func receiptFlow() Flow {
	return Flow{
		ID:     "simple-receipt",
		Script: "receipt.py",
		Prompts: []Prompt{
			{Field: "name", Text: "Name?"},
			{Field: "amount", Text: "Amount?"},
			{Field: "time", Text: "Time?"},
		},
		Artifacts: []string{"light.png", "dark.png"},
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, []string{"sber-receipt", "sber-bill", "tinkoff-receipt"}, c.IDs())

	sber, err := c.Lookup("sber-receipt")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "amount", "time"}, sber.Fields())
	require.Equal(t, []string{"check_light.png", "check_dark.png"}, sber.Artifacts)
	require.Equal(t, 2, sber.ExpectedArtifacts())

	bill, err := c.Lookup("sber-bill")
	require.NoError(t, err)
	require.Equal(t, []string{"amount", "time", "amount_decimal", "value_420", "value_1234", "value_9876", "value_10000"}, bill.Fields())
	require.Equal(t, 1, bill.ExpectedArtifacts())
}

func TestLookupUnknownFlow(t *testing.T) {
	c, err := NewCatalog(receiptFlow())
	require.NoError(t, err)
	_, err = c.Lookup("missing")
	require.ErrorIs(t, err, ErrUnknownFlow)
}

func TestNewCatalogRejectsInvalidFlows(t *testing.T) {
	cases := map[string]func(*Flow){
		"empty id":          func(f *Flow) { f.ID = " " },
		"no script":         func(f *Flow) { f.Script = "" },
		"absolute script":   func(f *Flow) { f.Script = "/usr/bin/receipt.py" },
		"no prompts":        func(f *Flow) { f.Prompts = nil },
		"empty field":       func(f *Flow) { f.Prompts[1].Field = "" },
		"empty prompt text": func(f *Flow) { f.Prompts[0].Text = "" },
		"duplicate field":   func(f *Flow) { f.Prompts[2].Field = "name" },
		"no artifacts":      func(f *Flow) { f.Artifacts = nil },
		"escaping artifact": func(f *Flow) { f.Artifacts = []string{"../out.png"} },
		"duplicate artifact": func(f *Flow) {
			f.Artifacts = []string{"out.png", "out.png"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := receiptFlow()
			mutate(&f)
			_, err := NewCatalog(f)
			require.Error(t, err)
		})
	}
}

func TestNewCatalogRejectsDuplicateIDs(t *testing.T) {
	_, err := NewCatalog(receiptFlow(), receiptFlow())
	require.ErrorContains(t, err, "duplicate flow id")
}

func TestStepsStopsEarly(t *testing.T) {
	f := receiptFlow()
	var seen []string
	for i, p := range f.Steps() {
		seen = append(seen, p.Field)
		if i == 1 {
			break
		}
	}
	require.Equal(t, []string{"name", "amount"}, seen)
}

func TestPayloadKeepsRawText(t *testing.T) {
	f := receiptFlow()
	p := f.Payload([]Answer{
		{Field: "name", Text: "Alice"},
		{Field: "amount", Text: "238 000 ₽"},
		{Field: "time", Text: ""},
	})
	require.Equal(t, Payload{"name": "Alice", "amount": "238 000 ₽", "time": ""}, p)
}

func TestPayloadUsesCustomBuilder(t *testing.T) {
	f := receiptFlow()
	f.Build = func(answers []Answer) Payload {
		return Payload{"count": string(rune('0' + len(answers)))}
	}
	require.Equal(t, Payload{"count": "1"}, f.Payload([]Answer{{Field: "name", Text: "x"}}))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.yaml")
	doc := "flows:\n  - id: one\n    script: one.py\n    prompts:\n      - field: a\n        text: A?\n    artifacts: [one.png]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"one"}, c.IDs())

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestParseRejectsEmptyCatalog(t *testing.T) {
	_, err := Parse([]byte("flows: []\n"))
	require.Error(t, err)
}
