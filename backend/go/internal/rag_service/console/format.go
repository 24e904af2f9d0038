package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"
)

// NoMatchesMessage is printed instead of an answer when nothing matched.
const NoMatchesMessage = "No relevant documents were found for this question."

// WriteAnswer prints the answer followed by the distinct source documents.
func WriteAnswer(w io.Writer, ans *schema.Answer) {
	if ans.NoMatches {
		fmt.Fprintln(w, NoMatchesMessage)
		return
	}
	fmt.Fprintln(w, ans.Text)
	if srcs := Sources(ans); len(srcs) > 0 {
		fmt.Fprintf(w, "Sources: %s\n", strings.Join(srcs, ", "))
	}
}

// Sources lists the distinct source paths of the matches in score order.
func Sources(ans *schema.Answer) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range ans.Sources {
		p := m.Metadata.SourcePath
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// WriteStats prints index statistics, one field per line.
func WriteStats(w io.Writer, s schema.IndexStats) {
	fmt.Fprintf(w, "Index:     %s\n", s.Name)
	fmt.Fprintf(w, "Records:   %d\n", s.RecordCount)
	if s.Dimension > 0 {
		fmt.Fprintf(w, "Dimension: %d\n", s.Dimension)
	}
	if s.Metric != "" {
		fmt.Fprintf(w, "Metric:    %s\n", s.Metric)
	}
	fmt.Fprintf(w, "Ready:     %t\n", s.Ready)
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, s.Extra[k])
	}
}

// WriteReport prints an ingestion summary and every failure.
func WriteReport(w io.Writer, r *schema.IngestReport) {
	fmt.Fprintf(w, "Ingested %d of %d documents from %s: %d chunks, %d records upserted in %d batches (%s)\n",
		r.DocumentsIngested, r.DocumentsLoaded, r.Directory, r.Chunks, r.RecordsUpserted, len(r.BatchSizes), r.Duration.Round(time.Millisecond))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d files\n", len(r.Skipped))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed: %s\n", f)
	}
}
