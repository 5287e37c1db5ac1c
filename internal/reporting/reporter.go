// Package reporting writes per-account results as JSON lines, a JSON array, or aligned
// text.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// Reporter writes account results to an output.
type Reporter interface {
	// Write records a single account result.
	Write(result schemas.AccountResult) error
	// Close flushes buffered output and closes the underlying file, if any.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("jsonl", "json" or "text") writing to outputPath.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	format = strings.ToLower(format)
	switch format {
	case "jsonl", "json", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer)
}

// NewWriter creates a reporter over w. The reporter takes ownership of w.
func NewWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch strings.ToLower(format) {
	case "jsonl":
		return &jsonLinesReporter{out: w, enc: json.NewEncoder(w)}, nil
	case "json":
		return &jsonReporter{out: w}, nil
	case "text":
		return newTextReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// jsonLinesReporter streams one JSON object per line.
type jsonLinesReporter struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

func (r *jsonLinesReporter) Write(result schemas.AccountResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", result.Email, err)
	}
	return nil
}

func (r *jsonLinesReporter) Close() error { return r.out.Close() }

// jsonReporter buffers every result and writes one indented array on Close.
type jsonReporter struct {
	mu      sync.Mutex
	out     io.WriteCloser
	results []schemas.AccountResult
}

func (r *jsonReporter) Write(result schemas.AccountResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *jsonReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := r.results
	if results == nil {
		results = []schemas.AccountResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		r.out.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := r.out.Write(append(data, '\n')); err != nil {
		r.out.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return r.out.Close()
}

// textReporter prints an aligned table row per account.
type textReporter struct {
	mu  sync.Mutex
	out io.WriteCloser
	tw  *tabwriter.Writer
}

func newTextReporter(w io.WriteCloser) *textReporter {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tCOUNTRY\tSTATUS\tANOMALY\tSTRATEGIES\tFAILED\tDURATION")
	return &textReporter{out: w, tw: tw}
}

func (r *textReporter) Write(result schemas.AccountResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	anomaly := string(result.Anomaly)
	if anomaly == "" {
		anomaly = "-"
	}
	_, err := fmt.Fprintf(r.tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		orDash(result.Email), orDash(result.Country), result.Status(), anomaly,
		strategies(result.Outcome), failed(result), result.Duration.Round(time.Millisecond))
	return err
}

func (r *textReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.tw.Flush(); err != nil {
		r.out.Close()
		return err
	}
	return r.out.Close()
}

// strategies renders intent=strategy pairs sorted by intent, unmatched ones as "none".
func strategies(o *schemas.FormOutcome) string {
	if o == nil || len(o.Results) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(o.Results))
	for intent, res := range o.Results {
		pairs = append(pairs, string(intent)+"="+string(res.Strategy))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func failed(r schemas.AccountResult) string {
	if r.Error != "" {
		return r.Error
	}
	if r.Outcome == nil || len(r.Outcome.Failed) == 0 {
		return "-"
	}
	out := make([]string, len(r.Outcome.Failed))
	for i, f := range r.Outcome.Failed {
		out[i] = string(f)
	}
	return strings.Join(out, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
