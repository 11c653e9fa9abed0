package sankey

import (
	"fmt"

	"github.com/dvloznov/finance-sankey/internal/domain"
)

// ValidationError reports a record that cannot be placed in the graph.
type ValidationError struct {
	Index  int           // position of the record in the input
	Record domain.Record // the offending record
	Field  string        // "category", "type", "item" or "amount"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d (category=%q type=%q item=%q amount=%s): %s: %s",
		e.Index, e.Record.Category, e.Record.Type, e.Record.Item, e.Record.Amount.String(), e.Field, e.Reason)
}

// DanglingReferenceError reports a link whose endpoint names no node.
type DanglingReferenceError struct {
	Link     Link
	Endpoint string // "source" or "target"
	Name     string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("link %s -> %s: %s %q is not a node", e.Link.Source, e.Link.Target, e.Endpoint, e.Name)
}

// DuplicateNodeError reports two nodes sharing one name.
type DuplicateNodeError struct {
	Name  string
	First int
	Again int
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node name %q used at positions %d and %d", e.Name, e.First, e.Again)
}
