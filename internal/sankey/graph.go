package sankey

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Column is one of the five left-to-right groups of the diagram.
type Column int

const (
	ColumnIncomeItems Column = iota
	ColumnIncomeTypes
	ColumnHub
	ColumnExpenseTypes
	ColumnExpenseItems

	columnCount
)

var columnNames = [...]string{"income item", "income type", "hub", "expense type", "expense item"}

func (c Column) String() string {
	if c < 0 || c >= columnCount {
		return fmt.Sprintf("Column(%d)", int(c))
	}
	return columnNames[c]
}

// Columns lists every column in diagram order.
func Columns() []Column {
	return []Column{ColumnIncomeItems, ColumnIncomeTypes, ColumnHub, ColumnExpenseTypes, ColumnExpenseItems}
}

// Node is a vertex of the flow graph.
type Node struct {
	Name  string `json:"name"`  // unique across the graph
	Title string `json:"title"` // display label
}

// Link is a weighted edge between two node names.
type Link struct {
	Source string
	Target string
	Value  decimal.Decimal
}

type linkJSON struct {
	Source string      `json:"source"`
	Target string      `json:"target"`
	Value  json.Number `json:"value"`
}

// MarshalJSON encodes Value as a JSON number so layout code can use it directly.
func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal(linkJSON{Source: l.Source, Target: l.Target, Value: json.Number(l.Value.String())})
}

func (l *Link) UnmarshalJSON(data []byte) error {
	var w linkJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := decimal.NewFromString(w.Value.String())
	if err != nil {
		return fmt.Errorf("link %s -> %s: value: %w", w.Source, w.Target, err)
	}
	*l = Link{Source: w.Source, Target: w.Target, Value: v}
	return nil
}

// Graph is the node/link input of a Sankey layout.
//
// A Graph returned by Build is never modified afterwards. Consumers that need
// to attach geometry work on Clone().
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	// bounds[c]..bounds[c+1] is the slice of Nodes in column c.
	bounds [columnCount + 1]int
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes:  make([]Node, len(g.Nodes)),
		Links:  make([]Link, len(g.Links)),
		bounds: g.bounds,
	}
	copy(c.Nodes, g.Nodes)
	copy(c.Links, g.Links)
	return c
}

// Column returns the nodes placed in column c, in diagram order.
func (g *Graph) Column(c Column) []Node {
	if c < 0 || c >= columnCount {
		return nil
	}
	lo, hi := g.bounds[c], g.bounds[c+1]
	if hi > len(g.Nodes) || lo > hi {
		return nil
	}
	return g.Nodes[lo:hi:hi]
}

// Inflow sums the values of links ending at name.
func (g *Graph) Inflow(name string) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range g.Links {
		if l.Target == name {
			sum = sum.Add(l.Value)
		}
	}
	return sum
}

// Outflow sums the values of links starting at name.
func (g *Graph) Outflow(name string) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range g.Links {
		if l.Source == name {
			sum = sum.Add(l.Value)
		}
	}
	return sum
}

// Validate checks that node names are unique and that every link endpoint
// names a node.
func (g *Graph) Validate() error {
	seen := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if first, ok := seen[n.Name]; ok {
			return &DuplicateNodeError{Name: n.Name, First: first, Again: i}
		}
		seen[n.Name] = i
	}
	for _, l := range g.Links {
		if _, ok := seen[l.Source]; !ok {
			return &DanglingReferenceError{Link: l, Endpoint: "source", Name: l.Source}
		}
		if _, ok := seen[l.Target]; !ok {
			return &DanglingReferenceError{Link: l, Endpoint: "target", Name: l.Target}
		}
	}
	return nil
}
