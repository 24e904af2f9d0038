package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"DocQA/backend/go/internal/rag_service/rag/schema"
	"DocQA/backend/go/pkg/logger"
)

// Service is what the console drives.
type Service interface {
	IndexName() string
	Ask(ctx context.Context, question string) (*schema.Answer, error)
	Describe(ctx context.Context) (schema.IndexStats, error)
	Delete(ctx context.Context) error
	Reindex(ctx context.Context, purge bool) (*schema.IngestReport, error)
}

// Options tunes Run.
type Options struct {
	// Prompt is printed before each command. Empty disables it.
	Prompt string
	// AssumeYes skips the delete confirmation.
	AssumeYes bool
	Log       *logger.Logger
}

// DefaultPrompt is the prompt of an interactive terminal session.
const DefaultPrompt = "> "

// Run reads one command per line from in and dispatches it to svc until an
// exit command, the end of input, or cancellation of ctx. Command failures
// are printed and the loop goes on; only a read error or ctx ends it early.
func Run(ctx context.Context, in io.Reader, out io.Writer, svc Service, opts Options) error {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	lines := readLines(ctx, in)
	next := func() (string, bool, error) {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return "", false, nil
			}
			return l.text, true, l.err
		}
	}

	fmt.Fprintf(out, "Ask a question about the documents in index %q. Commands: describe, delete, reindex, exit.\n", svc.IndexName())
	for {
		if opts.Prompt != "" {
			fmt.Fprint(out, opts.Prompt)
		}
		line, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		cmd := Parse(line)
		switch cmd.Kind {
		case Empty:
			continue
		case Exit:
			fmt.Fprintln(out, "Bye.")
			return nil
		case Delete:
			if !opts.AssumeYes {
				fmt.Fprintf(out, "Delete every record of index %q? This cannot be undone. [y/N] ", svc.IndexName())
				answer, ok, err := next()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				if !confirmed(answer) {
					fmt.Fprintln(out, "Cancelled.")
					continue
				}
			}
		}

		if err := Execute(ctx, svc, cmd, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			opts.Log.With("command", cmd.Kind.String()).WithError(err).Error("Command failed")
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// Execute runs one command and prints its result. Empty and Exit do nothing,
// and Delete runs without asking.
func Execute(ctx context.Context, svc Service, cmd Command, out io.Writer) error {
	switch cmd.Kind {
	case Describe:
		stats, err := svc.Describe(ctx)
		if err != nil {
			return err
		}
		WriteStats(out, stats)
	case Delete:
		if err := svc.Delete(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted all records of index %q.\n", svc.IndexName())
	case Reindex:
		fmt.Fprintln(out, "Reindexing, this may take a while...")
		report, err := svc.Reindex(ctx, false)
		if report != nil {
			WriteReport(out, report)
		}
		if err != nil {
			return err
		}
	case Ask:
		ans, err := svc.Ask(ctx, cmd.Text)
		if err != nil {
			if errors.Is(err, schema.ErrProviderUnavailable) {
				return fmt.Errorf("%w (you can ask again)", err)
			}
			return err
		}
		WriteAnswer(out, ans)
	}
	return nil
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

type line struct {
	text string
	err  error
}

// readLines feeds the lines of in to a channel so that waiting for input can
// be abandoned when ctx is done. The goroutine exits at the end of input.
func readLines(ctx context.Context, in io.Reader) <-chan line {
	ch := make(chan line)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case ch <- line{text: sc.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case ch <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
