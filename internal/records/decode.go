package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/shopspring/decimal"
)

// ErrMalformed wraps input that is not a JSON array of record objects.
var ErrMalformed = errors.New("malformed records")

// rawRecord keeps track of which fields were present in the input.
type rawRecord struct {
	Category *string          `json:"category"`
	Type     *string          `json:"type"`
	Item     *string          `json:"item"`
	Amount   *decimal.Decimal `json:"amount"`
}

// Decode parses a JSON array of records. Unknown fields are ignored.
// A missing category, or a missing type, item or amount on an income or
// expense record, is reported as a *sankey.ValidationError.
func Decode(data []byte) ([]domain.Record, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("Decode: %w: want a JSON array of records: %w", ErrMalformed, err)
	}

	out := make([]domain.Record, 0, len(elems))
	for i, elem := range elems {
		var raw rawRecord
		if err := json.Unmarshal(elem, &raw); err != nil {
			return nil, fmt.Errorf("Decode: %w: record %d: %w", ErrMalformed, i, err)
		}
		r, err := raw.toRecord(i)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (raw rawRecord) toRecord(index int) (domain.Record, error) {
	r := domain.Record{
		Category: domain.Category(deref(raw.Category)),
		Type:     deref(raw.Type),
		Item:     deref(raw.Item),
	}
	if raw.Amount != nil {
		r.Amount = *raw.Amount
	}

	missing := func(field string) error {
		return &sankey.ValidationError{Index: index, Record: r, Field: field, Reason: "missing"}
	}
	if strings.TrimSpace(string(r.Category)) == "" {
		return r, missing("category")
	}
	if !r.Category.IsFlow() {
		return r, nil
	}
	switch {
	case raw.Type == nil:
		return r, missing("type")
	case raw.Item == nil:
		return r, missing("item")
	case raw.Amount == nil:
		return r, missing("amount")
	}
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
