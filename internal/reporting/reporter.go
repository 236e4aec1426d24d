// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/storewalk/internal/journey"
)

// Reporter records journey results to an output. It is a journey.Sink, so it
// can be handed straight to Orchestrator.RunMany.
type Reporter interface {
	journey.Sink
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// IsStdout reports whether outputPath selects standard output.
func IsStdout(outputPath string) bool {
	return outputPath == "-" || outputPath == "stdout"
}

// New creates a reporter for format writing to outputPath. "-" and "stdout"
// write to standard output; a leading "~" is expanded to the home directory
// and missing parent directories are created.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case FormatJSON, FormatJSONL:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if outputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}

	var writer io.WriteCloser
	if IsStdout(outputPath) {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", path, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}

	if format == FormatJSONL {
		return NewJSONLReporter(writer), nil
	}
	return NewJSONReporter(writer, toolVersion), nil
}
