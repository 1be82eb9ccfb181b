package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowbase/rerankd/internal/engine"
	"github.com/knowbase/rerankd/internal/output"
)

// rankOptions holds CLI flags for rank.
type rankOptions struct {
	input  string // candidate documents JSON file, "-" for stdin
	cutoff int    // scoring cutoff override
	format string // "text", "json"
	stream bool   // print intermediate snapshots as scores land
}

func newRankCmd() *cobra.Command {
	var opts rankOptions

	cmd := &cobra.Command{
		Use:   "rank <query>",
		Short: "Re-rank candidate documents against a query",
		Long: `Re-rank candidate documents against a query using the neural
cross-encoder. Candidates are read as a JSON array of documents; the
first documents up to the cutoff are scored, the rest pass through in
their original order.

Examples:
  rerankd rank "vector databases" --input candidates.json
  cat candidates.json | rerankd rank "vector databases" --stream
  rerankd rank "ann benchmarks" --input candidates.json --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runRank(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "Candidates JSON file ('-' for stdin)")
	cmd.Flags().IntVarP(&opts.cutoff, "cutoff", "n", 0, "Scoring cutoff (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print each intermediate snapshot")

	return cmd
}

func runRank(ctx context.Context, cmd *cobra.Command, query string, opts rankOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.cutoff > 0 {
		cfg.Engine.Cutoff = opts.cutoff
	}

	docs, err := readDocuments(cmd, opts.input)
	if err != nil {
		return err
	}

	loader, err := buildLoader(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{Cutoff: cfg.Engine.Cutoff}, loader)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = eng.Run(runCtx) }()

	if err := eng.Submit(runCtx, engine.LoadCommand{}); err != nil {
		return err
	}
	if err := eng.Submit(runCtx, engine.RankCommand{
		RequestID: 1,
		Query:     query,
		Documents: docs,
	}); err != nil {
		return err
	}

	// Progress goes to stderr so stdout stays parseable in JSON mode.
	progress := output.New(cmd.ErrOrStderr())
	out := output.New(cmd.OutOrStdout())

	for ev := range eng.Events() {
		switch v := ev.(type) {
		case engine.StatusEvent:
			progress.Status("", v.Message)
		case engine.ModelReadyEvent:
			progress.Statusf("", "model ready: %s", v.Model)
		case engine.ErrorEvent:
			return fmt.Errorf("%s", v.Message)
		case engine.RankUpdateEvent:
			if opts.stream {
				if err := writeSnapshot(cmd, out, query, v.Documents, opts.format, false); err != nil {
					return err
				}
			}
		case engine.RankCompleteEvent:
			return writeSnapshot(cmd, out, query, v.Documents, opts.format, true)
		}
	}
	return runCtx.Err()
}

// readDocuments decodes the candidate list from a file or stdin.
func readDocuments(cmd *cobra.Command, input string) ([]engine.Document, error) {
	var data []byte
	var err error
	if input == "" || input == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}

	var docs []engine.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse candidates: %w", err)
	}
	return docs, nil
}

// writeSnapshot renders one ranking snapshot in the selected format.
func writeSnapshot(cmd *cobra.Command, out *output.Writer, query string, docs []engine.Document, format string, final bool) error {
	if format == "json" {
		return writeJSONSnapshot(cmd, docs, final)
	}

	if final {
		out.Header(fmt.Sprintf("Results for %q", query))
	} else {
		out.Statusf("", "scored %d of %d", countScored(docs), len(docs))
	}
	styles := out.Styles()
	for i, d := range docs {
		score := "   -  "
		if d.RerankScore != nil {
			score = styles.Score.Render(fmt.Sprintf("%.3f", *d.RerankScore))
		}
		title := d.Title
		if title == "" {
			title = d.ID
		}
		out.Statusf("", "%2d. [%s] %s", i+1, score, title)
		if d.Title != "" && d.ID != "" {
			out.Status("", "      "+styles.Dim.Render(d.ID))
		}
	}
	out.Newline()
	return nil
}

// writeJSONSnapshot emits compact JSON lines for streams and an indented
// array for the terminal snapshot.
func writeJSONSnapshot(cmd *cobra.Command, docs []engine.Document, final bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if final {
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	return enc.Encode(struct {
		Type      string            `json:"type"`
		Documents []engine.Document `json:"documents"`
	}{Type: "update", Documents: docs})
}

func countScored(docs []engine.Document) int {
	n := 0
	for _, d := range docs {
		if d.RerankScore != nil {
			n++
		}
	}
	return n
}
