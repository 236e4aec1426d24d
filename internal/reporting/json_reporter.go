// internal/reporting/json_reporter.go
package reporting

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/journey"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Output formats.
const (
	// FormatJSON writes one document with a summary and every run on Close.
	FormatJSON = "json"
	// FormatJSONL writes one result per line as runs finish.
	FormatJSONL = "jsonl"
)

// ToolName identifies the producer in JSON reports.
const ToolName = "storewalk"

// Summary counts the runs of a report.
type Summary struct {
	Runs   int `json:"runs"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	// Annotations is the total number of soft failures across runs.
	Annotations int `json:"annotations"`
}

// Document is the top level of a JSON report.
type Document struct {
	Tool        string            `json:"tool"`
	Version     string            `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
	Summary     Summary           `json:"summary"`
	Results     []*journey.Result `json:"results"`
}

// Summarize counts passed and failed runs.
func Summarize(results []*journey.Result) Summary {
	var s Summary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Runs++
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Annotations += len(r.Annotations)
	}
	return s
}

// JSONReporter buffers results and writes a single Document on Close.
// It is thread safe.
type JSONReporter struct {
	writer      io.WriteCloser
	logger      *zap.Logger
	toolVersion string
	now         func() time.Time

	mu      sync.Mutex
	results []*journey.Result
}

// NewJSONReporter creates a reporter that writes a JSON document to writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer:      writer,
		logger:      observability.GetLogger().Named("json_reporter"),
		toolVersion: toolVersion,
		now:         time.Now,
		results:     []*journey.Result{},
	}
}

// Record adds a finished run to the report.
func (r *JSONReporter) Record(_ context.Context, res *journey.Result) error {
	if res == nil {
		return fmt.Errorf("cannot record a nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := Document{
		Tool:        ToolName,
		Version:     r.toolVersion,
		GeneratedAt: r.now().UTC(),
		Summary:     Summarize(r.results),
		Results:     r.results,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("JSON report written.",
		zap.Int("runs", doc.Summary.Runs),
		zap.Int("failed", doc.Summary.Failed),
	)
	return nil
}

// JSONLReporter writes each result as one line as soon as it is recorded.
// It is thread safe.
type JSONLReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

// NewJSONLReporter creates a streaming reporter over writer.
func NewJSONLReporter(writer io.WriteCloser) *JSONLReporter {
	return &JSONLReporter{writer: writer}
}

// Record writes res as a single line.
func (r *JSONLReporter) Record(_ context.Context, res *journey.Result) error {
	if res == nil {
		return fmt.Errorf("cannot record a nil result")
	}
	line, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", res.RunID, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write result %s: %w", res.RunID, err)
	}
	return nil
}

// Close closes the writer.
func (r *JSONLReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
