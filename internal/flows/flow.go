// Package flows declares the receipt conversations: ordered prompts, the
// renderer script that consumes the answers and the artifacts it must produce.
package flows

import (
	"iter"
)

// Prompt is one question of a flow. Field names the payload key the answer is stored under.
type Prompt struct {
	Field string `yaml:"field"`
	Text  string `yaml:"text"`
}

// Answer is the raw user text recorded for a field.
type Answer struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// Payload is the flat field -> raw text mapping handed to the renderer.
type Payload map[string]string

// Flow describes one multi-step conversation that ends in a renderer invocation.
type Flow struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Script  string   `yaml:"script"`
	Prompts []Prompt `yaml:"prompts"`
	// Artifacts are file names relative to the script directory, in delivery order.
	Artifacts []string `yaml:"artifacts"`

	// Build turns the collected answers into a payload. Nil means BuildPayload.
	Build func([]Answer) Payload `yaml:"-"`
}

// ExpectedArtifacts returns how many files a successful render must produce.
func (f *Flow) ExpectedArtifacts() int {
	return len(f.Artifacts)
}

// Steps yields the prompts in their fixed order together with their index.
func (f *Flow) Steps() iter.Seq2[int, Prompt] {
	return func(yield func(int, Prompt) bool) {
		for i, p := range f.Prompts {
			if !yield(i, p) {
				return
			}
		}
	}
}

// Fields lists the payload keys of the flow in prompt order.
func (f *Flow) Fields() []string {
	out := make([]string, 0, len(f.Prompts))
	for _, p := range f.Steps() {
		out = append(out, p.Field)
	}
	return out
}

// Payload builds the renderer payload from answers using the flow's builder.
func (f *Flow) Payload(answers []Answer) Payload {
	if f.Build != nil {
		return f.Build(answers)
	}
	return BuildPayload(answers)
}

// BuildPayload maps every answer's field to its text. A repeated field keeps the last text.
func BuildPayload(answers []Answer) Payload {
	p := make(Payload, len(answers))
	for _, a := range answers {
		p[a.Field] = a.Text
	}
	return p
}
