package records

import (
	"context"
	"fmt"
	"math/big"
	"regexp"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

// maxDatasetLen is BigQuery's limit on dataset names.
const maxDatasetLen = 1024

var (
	projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9.:-]*[a-z0-9]$`)
	datasetPattern   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// BigQuerySource aggregates parsed statement transactions into records.
// Positive amounts become income, negative amounts expense; the category
// name is the record type and the subcategory (or category) the item. Only
// transactions from successful parsing runs are counted, and internal
// transfers are left out.
type BigQuerySource struct {
	ProjectID string
	Dataset   string

	// From and To bound transaction_date inclusively. Zero values leave
	// that side open.
	From civil.Date
	To   civil.Date
}

func (s *BigQuerySource) validate() error {
	if !projectIDPattern.MatchString(s.ProjectID) {
		return fmt.Errorf("invalid BigQuery project %q", s.ProjectID)
	}
	if len(s.Dataset) > maxDatasetLen || !datasetPattern.MatchString(s.Dataset) {
		return fmt.Errorf("invalid BigQuery dataset %q", s.Dataset)
	}
	if s.From.IsValid() && s.To.IsValid() && s.To.Before(s.From) {
		return fmt.Errorf("date range %s..%s is empty", s.From, s.To)
	}
	return nil
}

func (s *BigQuerySource) String() string {
	return fmt.Sprintf("bq://%s/%s", s.ProjectID, s.Dataset)
}

// Load implements Source.
func (s *BigQuerySource) Load(ctx context.Context) ([]domain.Record, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("BigQuerySource: %w", err)
	}

	client, err := bigquery.NewClient(ctx, s.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("BigQuerySource: bigquery client: %w", err)
	}
	defer client.Close()

	return s.LoadWithClient(ctx, client)
}

type recordRow struct {
	Category string   `bigquery:"category"`
	Type     string   `bigquery:"type"`
	Item     string   `bigquery:"item"`
	Amount   *big.Rat `bigquery:"amount"`
}

// LoadWithClient runs the aggregation with the provided BigQuery client.
func (s *BigQuerySource) LoadWithClient(ctx context.Context, client *bigquery.Client) ([]domain.Record, error) {
	sql, params := s.query()
	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuerySource: query read: %w", err)
	}

	var out []domain.Record
	for {
		var r recordRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQuerySource: iter next: %w", err)
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, fmt.Errorf("BigQuerySource: row %d: %w", len(out), err)
		}
		out = append(out, rec)
	}

	return out, nil
}

func (r recordRow) toRecord() (domain.Record, error) {
	rec := domain.Record{
		Category: domain.Category(r.Category),
		Type:     r.Type,
		Item:     r.Item,
	}
	if r.Amount == nil {
		return rec, nil
	}
	amount, err := decimal.NewFromString(r.Amount.FloatString(9))
	if err != nil {
		return rec, fmt.Errorf("amount %s: %w", r.Amount.String(), err)
	}
	rec.Amount = amount
	return rec, nil
}

// query returns the aggregation SQL and its parameters. Rows come back
// ordered so that the graph is stable between runs.
func (s *BigQuerySource) query() (string, []bigquery.QueryParameter) {
	var (
		where  string
		params []bigquery.QueryParameter
	)
	if s.From.IsValid() {
		where += "\n\t\t  AND t.transaction_date >= @start_date"
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: s.From})
	}
	if s.To.IsValid() {
		where += "\n\t\t  AND t.transaction_date <= @end_date"
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: s.To})
	}

	sql := fmt.Sprintf(`
		SELECT
			IF(t.amount >= 0, 'income', 'expense') AS category,
			COALESCE(t.category_name, 'Uncategorized') AS type,
			COALESCE(t.subcategory_name, t.category_name, 'Uncategorized') AS item,
			SUM(ABS(t.amount)) AS amount
		FROM `+"`%[1]s.%[2]s.transactions`"+` t
		INNER JOIN `+"`%[1]s.%[2]s.parsing_runs`"+` pr
		  ON t.parsing_run_id = pr.parsing_run_id
		WHERE pr.status = 'SUCCESS'
		  AND NOT COALESCE(t.is_internal_transfer, FALSE)%[3]s
		GROUP BY category, type, item
		ORDER BY category DESC, type, item
	`, s.ProjectID, s.Dataset, where)

	return sql, params
}
