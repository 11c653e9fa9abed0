package sankey

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultHub is the name and title of the node all income flows through.
const DefaultHub = "JMU"

// Builder turns categorized records into a five-column flow graph:
// income items → income types → hub → expense types → expense items.
type Builder struct {
	hub string
}

// NewBuilder returns a Builder using hub as the central node. An empty hub
// falls back to DefaultHub.
func NewBuilder(hub string) *Builder {
	hub = strings.TrimSpace(hub)
	if hub == "" {
		hub = DefaultHub
	}
	return &Builder{hub: hub}
}

// Hub returns the label of the hub node.
func (b *Builder) Hub() string {
	return b.hub
}

// Build is NewBuilder(DefaultHub).Build(records).
func Build(records []domain.Record) (*Graph, error) {
	return NewBuilder(DefaultHub).Build(records)
}

// Build constructs the graph. Records of any category other than income or
// expense are ignored, as are flow records with a zero amount. The output
// order depends only on the input order.
func (b *Builder) Build(records []domain.Record) (*Graph, error) {
	income, expense, err := partition(records)
	if err != nil {
		return nil, err
	}

	g := &Graph{}
	n := newNamer()
	n.reserve(ColumnHub, b.hub)

	g.bounds[ColumnIncomeItems] = len(g.Nodes)
	for _, r := range income {
		n.add(g, ColumnIncomeItems, r.Item)
	}
	g.bounds[ColumnIncomeTypes] = len(g.Nodes)
	var incomeTypes []string
	typeTotals := make(map[string]decimal.Decimal)
	for _, r := range income {
		if _, ok := typeTotals[r.Type]; !ok {
			incomeTypes = append(incomeTypes, r.Type)
			typeTotals[r.Type] = decimal.Zero
		}
		typeTotals[r.Type] = typeTotals[r.Type].Add(r.Amount)
		n.add(g, ColumnIncomeTypes, r.Type)
	}
	g.bounds[ColumnHub] = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{Name: b.hub, Title: b.hub})
	g.bounds[ColumnExpenseTypes] = len(g.Nodes)
	for _, r := range expense {
		n.add(g, ColumnExpenseTypes, r.Type)
	}
	g.bounds[ColumnExpenseItems] = len(g.Nodes)
	for _, r := range expense {
		n.add(g, ColumnExpenseItems, r.Item)
	}
	g.bounds[columnCount] = len(g.Nodes)

	hub := b.hub
	g.Links = make([]Link, 0, 2*len(income)+len(incomeTypes)+2*len(expense))
	for _, r := range income {
		g.Links = append(g.Links, Link{
			Source: n.name(ColumnIncomeItems, r.Item),
			Target: n.name(ColumnIncomeTypes, r.Type),
			Value:  r.Amount,
		})
	}
	for _, t := range incomeTypes {
		g.Links = append(g.Links, Link{
			Source: n.name(ColumnIncomeTypes, t),
			Target: hub,
			Value:  typeTotals[t],
		})
	}
	for _, r := range expense {
		g.Links = append(g.Links, Link{
			Source: hub,
			Target: n.name(ColumnExpenseTypes, r.Type),
			Value:  r.Amount,
		})
	}
	for _, r := range expense {
		g.Links = append(g.Links, Link{
			Source: n.name(ColumnExpenseTypes, r.Type),
			Target: n.name(ColumnExpenseItems, r.Item),
			Value:  r.Amount,
		})
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// partition validates records and splits the ones carrying flow by category.
func partition(records []domain.Record) (income, expense []domain.Record, err error) {
	for i, r := range records {
		if strings.TrimSpace(string(r.Category)) == "" {
			return nil, nil, &ValidationError{Index: i, Record: r, Field: "category", Reason: "missing"}
		}
		if !r.Category.IsFlow() {
			continue
		}
		switch {
		case strings.TrimSpace(r.Type) == "":
			return nil, nil, &ValidationError{Index: i, Record: r, Field: "type", Reason: "missing"}
		case strings.TrimSpace(r.Item) == "":
			return nil, nil, &ValidationError{Index: i, Record: r, Field: "item", Reason: "missing"}
		case r.Amount.IsNegative():
			return nil, nil, &ValidationError{Index: i, Record: r, Field: "amount", Reason: "negative"}
		case r.Amount.IsZero():
			continue
		}
		if r.Category == domain.CategoryIncome {
			income = append(income, r)
		} else {
			expense = append(expense, r)
		}
	}
	return income, expense, nil
}

type columnLabel struct {
	col   Column
	label string
}

// namer assigns unique node names. A label already taken by an earlier column
// or by the hub is suffixed with its column, e.g. "Other (expense type)".
type namer struct {
	names map[columnLabel]string
	taken map[string]bool
}

func newNamer() *namer {
	return &namer{
		names: make(map[columnLabel]string),
		taken: make(map[string]bool),
	}
}

// reserve claims label as the exact name of the node at (col, label). The
// caller appends that node itself.
func (n *namer) reserve(col Column, label string) {
	n.names[columnLabel{col: col, label: label}] = label
	n.taken[label] = true
}

func (n *namer) add(g *Graph, col Column, label string) {
	key := columnLabel{col: col, label: label}
	if _, ok := n.names[key]; ok {
		return
	}
	name := label
	if n.taken[name] {
		name = fmt.Sprintf("%s (%s)", label, col)
		for i := 2; n.taken[name]; i++ {
			name = fmt.Sprintf("%s (%s %d)", label, col, i)
		}
	}
	n.taken[name] = true
	n.names[key] = name
	g.Nodes = append(g.Nodes, Node{Name: name, Title: label})
}

func (n *namer) name(col Column, label string) string {
	return n.names[columnLabel{col: col, label: label}]
}
