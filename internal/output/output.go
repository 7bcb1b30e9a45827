// Package output renders command results to the terminal: styled when
// stdout is a TTY, plain when piped, JSON when requested.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/librarian-ai/librarian/internal/ingest"
	"github.com/librarian-ai/librarian/internal/retrieve"
)

// Printer renders results to a single writer.
type Printer struct {
	w      io.Writer
	styles Styles
	json   bool
}

// NewPrinter picks styling from the writer: colors only when it is a
// terminal. jsonMode switches every render to one JSON document.
func NewPrinter(w io.Writer, jsonMode bool) *Printer {
	styles := PlainStyles()
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styles = DefaultStyles()
	}
	return &Printer{w: w, styles: styles, json: jsonMode}
}

// Results renders ranked retrieval hits.
func (p *Printer) Results(query string, results []retrieve.Result) error {
	if p.json {
		return p.encode(map[string]any{"query": query, "results": results})
	}

	fmt.Fprintf(p.w, "%s %s\n\n",
		p.styles.Label.Render("Results for:"),
		p.styles.Title.Render(query))

	for i, r := range results {
		header := fmt.Sprintf("%d. %s", i+1, displayTitle(r))
		fmt.Fprintf(p.w, "%s  %s\n",
			p.styles.Title.Render(header),
			p.styles.Score.Render(fmt.Sprintf("[%.3f]", r.Score)))
		if len(r.Categories) > 0 {
			fmt.Fprintf(p.w, "   %s\n",
				p.styles.Dim.Render(strings.Join(r.Categories, ", ")))
		}
		fmt.Fprintf(p.w, "   %s\n", p.styles.Label.Render(r.SourceFile))
		fmt.Fprintf(p.w, "%s\n\n", indent(snippet(r.Text, 400), "   "))
	}
	return nil
}

// NoResults renders the empty outcome without treating it as a failure.
func (p *Printer) NoResults(query string) error {
	if p.json {
		return p.encode(map[string]any{"query": query, "results": []retrieve.Result{}})
	}
	fmt.Fprintf(p.w, "%s\n", p.styles.Warning.Render("No results found."))
	return nil
}

// Summary renders an ingest run outcome.
func (p *Printer) Summary(s ingest.Summary) error {
	if p.json {
		return p.encode(map[string]int{
			"processed": s.Processed,
			"skipped":   s.Skipped,
			"removed":   s.Removed,
			"errored":   s.Errored,
			"chunks":    s.Chunks,
		})
	}

	line := fmt.Sprintf("Indexed %d file(s), %d chunk(s); %d unchanged, %d removed",
		s.Processed, s.Chunks, s.Skipped, s.Removed)
	fmt.Fprintf(p.w, "%s\n", p.styles.Success.Render(line))
	if s.Errored > 0 {
		fmt.Fprintf(p.w, "%s\n",
			p.styles.Warning.Render(fmt.Sprintf("%d file(s) failed, see the log", s.Errored)))
	}
	return nil
}

// KV renders label/value status lines, preserving order.
func (p *Printer) KV(pairs [][2]string) error {
	if p.json {
		m := make(map[string]string, len(pairs))
		for _, kv := range pairs {
			m[strings.ToLower(strings.ReplaceAll(kv[0], " ", "_"))] = kv[1]
		}
		return p.encode(m)
	}
	width := 0
	for _, kv := range pairs {
		if len(kv[0]) > width {
			width = len(kv[0])
		}
	}
	for _, kv := range pairs {
		fmt.Fprintf(p.w, "%s  %s\n",
			p.styles.Label.Render(fmt.Sprintf("%-*s", width, kv[0])),
			kv[1])
	}
	return nil
}

// Errorf renders an error line to the writer.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintf(p.w, "%s\n", p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func displayTitle(r retrieve.Result) string {
	if r.SourceTitle != "" {
		return r.SourceTitle
	}
	return r.SourceFile
}

// snippet truncates text on a rune boundary with an ellipsis.
func snippet(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
