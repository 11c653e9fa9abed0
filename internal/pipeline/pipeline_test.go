package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dvloznov/finance-sankey/internal/domain"
	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/records"
	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockResolver serves fixed sources by URI.
type mockResolver struct {
	sources map[string]records.Source
}

func (m *mockResolver) Resolve(uri string) (records.Source, error) {
	src, ok := m.sources[uri]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", uri)
	}
	return src, nil
}

// failingSource simulates an unreachable backend.
type failingSource struct{}

func (failingSource) Load(ctx context.Context) ([]domain.Record, error) {
	return nil, errors.New("connection refused")
}

func (failingSource) String() string { return "failing" }

func record(category, typ, item string, amount int64) domain.Record {
	return domain.Record{Category: domain.Category(category), Type: typ, Item: item, Amount: decimal.NewFromInt(amount)}
}

func newResolver() *mockResolver {
	return &mockResolver{sources: map[string]records.Source{
		"jmu": &records.StaticSource{Name: "jmu", Records: []domain.Record{
			record("income", "Tuition", "Undergrad", 100),
			record("expense", "Salaries", "Faculty", 80),
		}},
		"negative": &records.StaticSource{Records: []domain.Record{
			record("income", "Tuition", "Undergrad", -5),
		}},
		"down": failingSource{},
	}}
}

func TestBuildGraph(t *testing.T) {
	g, err := BuildGraph(context.Background(), newResolver(), "jmu", "")
	require.NoError(t, err)

	assert.Len(t, g.Nodes, 5)
	assert.Len(t, g.Links, 4)
	assert.Equal(t, sankey.DefaultHub, g.Column(sankey.ColumnHub)[0].Name)
	assert.True(t, g.Inflow(sankey.DefaultHub).Equal(decimal.NewFromInt(100)))
}

func TestBuildGraph_CustomHub(t *testing.T) {
	g, err := BuildGraph(context.Background(), newResolver(), "jmu", "Campus")
	require.NoError(t, err)
	assert.Equal(t, "Campus", g.Column(sankey.ColumnHub)[0].Name)
}

func TestBuildGraph_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		invalid   bool
		dataError bool
	}{
		{name: "unknown source", uri: "s3://nowhere", invalid: true},
		{name: "negative amount", uri: "negative", invalid: true, dataError: true},
		{name: "backend down", uri: "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(context.Background(), newResolver(), tt.uri, "")
			require.Error(t, err)
			assert.Equal(t, tt.invalid, IsInvalidInput(err))
			assert.Equal(t, tt.dataError, IsDataError(err))
		})
	}
}

func TestPipeline_StopsAtFirstFailingStep(t *testing.T) {
	state := &PipelineState{SourceURI: "down"}
	err := NewGraphBuildPipeline(newResolver()).Execute(context.Background(), state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 2 (load) failed")
	assert.NotNil(t, state.Source)
	assert.Nil(t, state.Graph)
}

func TestIsDataError_Malformed(t *testing.T) {
	_, err := records.Decode([]byte(`{"not": "an array"}`))
	assert.True(t, IsDataError(err))
	assert.True(t, IsInvalidInput(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsDataError(errors.New("timeout")))
}

func TestJobHandler(t *testing.T) {
	handler := NewJobHandler(newResolver())
	ctx := context.Background()

	job := &jobs.BuildGraphJob{JobID: "j1", Source: "jmu", Hub: "Campus"}
	require.NoError(t, handler(ctx, job))
	require.NotNil(t, job.Graph)
	assert.Equal(t, "Campus", job.Graph.Column(sankey.ColumnHub)[0].Name)

	err := handler(ctx, &jobs.BuildGraphJob{JobID: "j2", Source: "negative"})
	assert.True(t, jobs.IsPermanent(err))

	err = handler(ctx, &jobs.BuildGraphJob{JobID: "j3", Source: "down"})
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
}

func TestJobHandler_LogsJobFields(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	job := &jobs.BuildGraphJob{JobID: "j1", Source: "jmu", RetryCount: 1}
	require.NoError(t, NewJobHandler(newResolver())(ctx, job))

	out := buf.String()
	assert.Contains(t, out, `"job_id":"j1"`)
	assert.Contains(t, out, `"source":"jmu"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, "Processing graph build job")
}
