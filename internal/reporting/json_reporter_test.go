// internal/reporting/json_reporter_test.go
package reporting_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/storewalk/internal/journey"
	"github.com/xkilldash9x/storewalk/internal/reporting"
)

// MockWriteCloser allows capturing output and simulating I/O errors.
type MockWriteCloser struct {
	Buffer    *bytes.Buffer
	FailWrite bool
	FailClose bool
	Closed    bool
}

func (m *MockWriteCloser) Write(p []byte) (n int, err error) {
	if m.FailWrite {
		return 0, errors.New("simulated write error")
	}
	return m.Buffer.Write(p)
}

func (m *MockWriteCloser) Close() error {
	m.Closed = true
	if m.FailClose {
		return errors.New("simulated close error")
	}
	return nil
}

func newMock() *MockWriteCloser { return &MockWriteCloser{Buffer: new(bytes.Buffer)} }

func passedResult(id string) *journey.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &journey.Result{
		RunID:      id,
		Status:     journey.StatusPassed,
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Email:      "testuser_0123456789abcdef@test.com",
		Cart:       &journey.CartSummary{Tier: "modal_checkout", Items: 1, Product: "Hummingbird notebook", Subtotal: 29},
		Checkpoints: []journey.Checkpoint{
			{Name: journey.CheckpointAuthenticated, Passed: true},
			{Name: journey.CheckpointCartItem, Passed: true, Detail: "1 items in cart"},
		},
		Annotations: []journey.Annotation{
			{Step: journey.StepProceedToCart, Kind: journey.KindElementNotFound, Message: "modal_checkout tier failed"},
		},
	}
}

func failedResult(id string) *journey.Result {
	res := passedResult(id)
	res.Status = journey.StatusFailed
	res.Cart = nil
	res.Annotations = []journey.Annotation{}
	res.Failure = &journey.Failure{Kind: journey.KindCheckpointFailure, Step: journey.StepVerifyResults, Message: "checkpoint search_results failed"}
	return res
}

func TestJSONReporter_WriteAndClose(t *testing.T) {
	writer := newMock()
	r := reporting.NewJSONReporter(writer, "v1.2.3-test")
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, passedResult("run-1")))
	require.NoError(t, r.Record(ctx, failedResult("run-2")))
	require.NoError(t, r.Close())
	assert.True(t, writer.Closed)

	var doc reporting.Document
	require.NoError(t, json.Unmarshal(writer.Buffer.Bytes(), &doc))

	assert.Equal(t, reporting.ToolName, doc.Tool)
	assert.Equal(t, "v1.2.3-test", doc.Version)
	assert.False(t, doc.GeneratedAt.IsZero())
	assert.Equal(t, reporting.Summary{Runs: 2, Passed: 1, Failed: 1, Annotations: 1}, doc.Summary)

	want := []*journey.Result{passedResult("run-1"), failedResult("run-2")}
	if diff := cmp.Diff(want, doc.Results); diff != "" {
		t.Errorf("results mismatch after decoding (-want +got):\n%s", diff)
	}
}

func TestJSONReporter_FieldNames(t *testing.T) {
	writer := newMock()
	r := reporting.NewJSONReporter(writer, "v")
	require.NoError(t, r.Record(context.Background(), failedResult("run-9")))
	require.NoError(t, r.Close())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(writer.Buffer.Bytes(), &raw))
	results := raw["results"].([]any)
	first := results[0].(map[string]any)

	assert.Equal(t, "run-9", first["run_id"])
	assert.Equal(t, "failed", first["status"])
	assert.NotContains(t, first, "cart", "nil cart is omitted")
	failure := first["failure"].(map[string]any)
	assert.Equal(t, "CHECKPOINT_ASSERTION_FAILURE", failure["kind"])
	assert.Equal(t, "verify_results", failure["step"])
}

func TestJSONReporter_EmptyReport(t *testing.T) {
	writer := newMock()
	r := reporting.NewJSONReporter(writer, "v")
	require.NoError(t, r.Close())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(writer.Buffer.Bytes(), &raw))
	assert.Equal(t, []any{}, raw["results"], "results must encode as an empty array, not null")
}

// TestJSONReporter_Concurrency ensures Record is safe for parallel runs.
func TestJSONReporter_Concurrency(t *testing.T) {
	writer := newMock()
	r := reporting.NewJSONReporter(writer, "v")

	const workers, perWorker = 20, 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, r.Record(context.Background(), passedResult(fmt.Sprintf("run-%d-%d", id, j))))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, r.Close())

	var doc reporting.Document
	require.NoError(t, json.Unmarshal(writer.Buffer.Bytes(), &doc))
	assert.Len(t, doc.Results, workers*perWorker)
	assert.Equal(t, workers*perWorker, doc.Summary.Passed)
}

func TestJSONReporter_ErrorHandling(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		r := reporting.NewJSONReporter(newMock(), "v")
		assert.Error(t, r.Record(context.Background(), nil))
	})

	t.Run("close error", func(t *testing.T) {
		writer := &MockWriteCloser{Buffer: new(bytes.Buffer), FailClose: true}
		err := reporting.NewJSONReporter(writer, "v").Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close output writer")
	})

	t.Run("write error", func(t *testing.T) {
		writer := &MockWriteCloser{Buffer: new(bytes.Buffer), FailWrite: true}
		r := reporting.NewJSONReporter(writer, "v")
		require.NoError(t, r.Record(context.Background(), passedResult("run-1")))

		err := r.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to encode JSON report")
		assert.True(t, writer.Closed, "writer is closed even when encoding fails")
	})
}

func TestJSONLReporter_StreamsLines(t *testing.T) {
	writer := newMock()
	r := reporting.NewJSONLReporter(writer)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, passedResult("run-1")))
	require.NoError(t, r.Record(ctx, failedResult("run-2")))
	// Lines are visible before Close.
	assert.Equal(t, 2, bytes.Count(writer.Buffer.Bytes(), []byte("\n")))
	require.NoError(t, r.Close())

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(writer.Buffer.Bytes()))
	for scanner.Scan() {
		var res journey.Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		ids = append(ids, res.RunID)
	}
	assert.Equal(t, []string{"run-1", "run-2"}, ids)
}

func TestJSONLReporter_WriteError(t *testing.T) {
	writer := &MockWriteCloser{Buffer: new(bytes.Buffer), FailWrite: true}
	r := reporting.NewJSONLReporter(writer)
	err := r.Record(context.Background(), passedResult("run-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
}

func TestReporterIsAJourneySink(t *testing.T) {
	var _ journey.Sink = reporting.NewJSONReporter(newMock(), "v")
	var _ journey.Sink = reporting.NewJSONLReporter(newMock())
}

func TestSummarize(t *testing.T) {
	got := reporting.Summarize([]*journey.Result{passedResult("a"), nil, failedResult("b"), passedResult("c")})
	assert.Equal(t, reporting.Summary{Runs: 3, Passed: 2, Failed: 1, Annotations: 2}, got)
}
