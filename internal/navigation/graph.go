// Package navigation implements the menu graph and the state machine that routes
// user input to static replies or into flows.
package navigation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/receiptbot/internal/flows"
)

//go:embed menu.yaml
var defaultMenu []byte

// Button is one selector. Exactly one of Node or Flow is set.
type Button struct {
	Label    string `yaml:"label"`
	Callback string `yaml:"callback"`
	Node     string `yaml:"node"`
	Flow     string `yaml:"flow"`
	// Return is the node shown after the flow finishes; root when empty.
	Return string `yaml:"return"`
}

// Keyboard is either a reply keyboard (label selectors) or an inline one (callback selectors).
type Keyboard struct {
	Inline bool       `yaml:"inline"`
	Rows   [][]Button `yaml:"rows"`
}

// Node is one menu state.
type Node struct {
	ID       string    `yaml:"id"`
	Text     string    `yaml:"text"`
	Keyboard *Keyboard `yaml:"keyboard"`
	// KeyboardFrom reuses another node's keyboard.
	KeyboardFrom string `yaml:"keyboard_from"`
}

// Messages are the fixed notices of the flow lifecycle.
type Messages struct {
	Generating string `yaml:"generating"`
	Success    string `yaml:"success"`
	Failure    string `yaml:"failure"`
	Busy       string `yaml:"busy"`
	Cancelled  string `yaml:"cancelled"`
}

var defaultMessages = Messages{
	Generating: "Generating receipt...",
	Success:    "Receipt generated successfully!",
	Failure:    "Error generating receipt. Please try again.",
	Busy:       "A receipt is still being generated. Please wait a moment.",
	Cancelled:  "Cancelled.",
}

// Graph is the menu declared in YAML. It must pass Validate before use.
type Graph struct {
	Root     string   `yaml:"root"`
	Messages Messages `yaml:"messages"`
	Nodes    []Node   `yaml:"nodes"`

	nodes      map[string]*Node
	byCallback map[string]Button
	byLabel    map[string]Button
	returns    map[string]string
	callbacks  []string
}

// Parse decodes a menu document.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("navigation: failed to parse menu: %w", err)
	}
	return &g, nil
}

// Default returns the built-in menu.
func Default() (*Graph, error) {
	return Parse(defaultMenu)
}

// Load reads the menu at path, or the built-in one when path is empty.
func Load(path string) (*Graph, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("navigation: failed to read menu: %w", err)
	}
	return Parse(data)
}

// Validate checks the graph against the flow catalog and builds its lookup tables.
func (g *Graph) Validate(catalog *flows.Catalog) error {
	g.nodes = make(map[string]*Node, len(g.Nodes))
	g.byCallback = make(map[string]Button)
	g.byLabel = make(map[string]Button)
	g.returns = make(map[string]string)
	g.callbacks = nil
	g.applyMessageDefaults()

	var errs []error
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("node %d has no id", i))
			continue
		}
		if _, dup := g.nodes[n.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node %q", n.ID))
			continue
		}
		if strings.TrimSpace(n.Text) == "" {
			errs = append(errs, fmt.Errorf("node %q has no text", n.ID))
		}
		if n.Keyboard != nil && n.KeyboardFrom != "" {
			errs = append(errs, fmt.Errorf("node %q declares both keyboard and keyboard_from", n.ID))
		}
		g.nodes[n.ID] = n
	}
	if _, ok := g.nodes[g.Root]; !ok {
		errs = append(errs, fmt.Errorf("root node %q does not exist", g.Root))
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.KeyboardFrom != "" {
			src, ok := g.nodes[n.KeyboardFrom]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("node %q: keyboard_from %q does not exist", n.ID, n.KeyboardFrom))
			case src.KeyboardFrom != "":
				errs = append(errs, fmt.Errorf("node %q: keyboard_from %q must declare its own keyboard", n.ID, n.KeyboardFrom))
			}
		}
		if n.Keyboard == nil {
			continue
		}
		for _, row := range n.Keyboard.Rows {
			for _, b := range row {
				if err := g.addButton(n, b, catalog); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("navigation: invalid menu: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Graph) addButton(n *Node, b Button, catalog *flows.Catalog) error {
	if strings.TrimSpace(b.Label) == "" {
		return fmt.Errorf("node %q: button without label", n.ID)
	}
	if (b.Node == "") == (b.Flow == "") {
		return fmt.Errorf("node %q: button %q must target exactly one of node or flow", n.ID, b.Label)
	}
	if b.Node != "" {
		if _, ok := g.nodes[b.Node]; !ok {
			return fmt.Errorf("node %q: button %q targets unknown node %q", n.ID, b.Label, b.Node)
		}
		if b.Return != "" {
			return fmt.Errorf("node %q: button %q sets return without a flow", n.ID, b.Label)
		}
	}
	if b.Flow != "" {
		if _, err := catalog.Lookup(b.Flow); err != nil {
			return fmt.Errorf("node %q: button %q: %w", n.ID, b.Label, err)
		}
		ret := b.Return
		if ret == "" {
			ret = g.Root
		}
		if _, ok := g.nodes[ret]; !ok {
			return fmt.Errorf("node %q: button %q returns to unknown node %q", n.ID, b.Label, ret)
		}
		if prev, seen := g.returns[b.Flow]; seen && prev != ret {
			return fmt.Errorf("flow %q returns to both %q and %q", b.Flow, prev, ret)
		}
		g.returns[b.Flow] = ret
	}

	if n.Keyboard.Inline {
		if b.Callback == "" {
			return fmt.Errorf("node %q: inline button %q has no callback id", n.ID, b.Label)
		}
		if _, dup := g.byCallback[b.Callback]; dup {
			return fmt.Errorf("duplicate callback id %q", b.Callback)
		}
		g.byCallback[b.Callback] = b
		g.callbacks = append(g.callbacks, b.Callback)
		return nil
	}
	if b.Callback != "" {
		return fmt.Errorf("node %q: reply button %q cannot carry a callback id", n.ID, b.Label)
	}
	if _, dup := g.byLabel[b.Label]; dup {
		return fmt.Errorf("duplicate reply label %q", b.Label)
	}
	g.byLabel[b.Label] = b
	return nil
}

// HideFlows removes the buttons that enter any of flowIDs. Rows left empty are
// dropped, and a keyboard left without rows is removed. Call before Validate.
func (g *Graph) HideFlows(flowIDs ...string) {
	if len(flowIDs) == 0 {
		return
	}
	hidden := make(map[string]struct{}, len(flowIDs))
	for _, id := range flowIDs {
		hidden[id] = struct{}{}
	}
	for i := range g.Nodes {
		kb := g.Nodes[i].Keyboard
		if kb == nil {
			continue
		}
		rows := kb.Rows[:0]
		for _, row := range kb.Rows {
			kept := row[:0]
			for _, b := range row {
				if _, ok := hidden[b.Flow]; ok && b.Flow != "" {
					continue
				}
				kept = append(kept, b)
			}
			if len(kept) > 0 {
				rows = append(rows, kept)
			}
		}
		kb.Rows = rows
		if len(rows) == 0 {
			g.Nodes[i].Keyboard = nil
		}
	}
}

func (g *Graph) applyMessageDefaults() {
	m := &g.Messages
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&m.Generating, defaultMessages.Generating},
		{&m.Success, defaultMessages.Success},
		{&m.Failure, defaultMessages.Failure},
		{&m.Busy, defaultMessages.Busy},
		{&m.Cancelled, defaultMessages.Cancelled},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
}

// Node returns the node with id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// RootNode returns the initial state.
func (g *Graph) RootNode() *Node {
	return g.nodes[g.Root]
}

// KeyboardOf returns the node's own keyboard or the one it borrows.
func (g *Graph) KeyboardOf(n *Node) *Keyboard {
	if n == nil {
		return nil
	}
	if n.KeyboardFrom != "" {
		if src, ok := g.nodes[n.KeyboardFrom]; ok {
			return src.Keyboard
		}
	}
	return n.Keyboard
}

// ByCallback resolves an inline selector.
func (g *Graph) ByCallback(id string) (Button, bool) {
	b, ok := g.byCallback[id]
	return b, ok
}

// ByLabel resolves a reply keyboard selector.
func (g *Graph) ByLabel(label string) (Button, bool) {
	b, ok := g.byLabel[label]
	return b, ok
}

// ReturnNode returns the node shown after flowID finishes.
func (g *Graph) ReturnNode(flowID string) *Node {
	if id, ok := g.returns[flowID]; ok {
		if n, ok := g.nodes[id]; ok {
			return n
		}
	}
	return g.RootNode()
}

// CallbackIDs lists inline selectors in declaration order.
func (g *Graph) CallbackIDs() []string {
	return append([]string(nil), g.callbacks...)
}
