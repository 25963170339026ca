package sched

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Task output is captured per run, not process-wide: every run installs its
// own writer into the context handed to the callable, so parallel runs never
// interleave their captured logs. Callables emit output through Printf,
// Println or RunWriter.

type runWriterKey struct{}

// RunWriter returns the capture writer of the run the context belongs to.
// Everything written to it lands in the job's RunRecord, on the real stderr
// and, when the scheduler carries a rotating log file, in that file too.
// Outside a run scope it falls back to stderr.
func RunWriter(ctx context.Context) io.Writer {
	if ctx != nil {
		if w, ok := ctx.Value(runWriterKey{}).(io.Writer); ok {
			return w
		}
	}
	return os.Stderr
}

// Printf writes formatted task output to the current run's capture writer.
func Printf(ctx context.Context, format string, args ...any) {
	fmt.Fprintf(RunWriter(ctx), format, args...)
}

// Println writes task output to the current run's capture writer.
func Println(ctx context.Context, args ...any) {
	fmt.Fprintln(RunWriter(ctx), args...)
}

func withRunWriter(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, runWriterKey{}, w)
}

// captureWriter fans task output out to the owning record, the real stderr
// and the optional rotating file logger.
type captureWriter struct {
	record *RunRecord
	echo   io.Writer
	file   *log.Logger
}

func (w *captureWriter) Write(p []byte) (int, error) {
	msg := strings.ReplaceAll(string(p), "\r\n", "\n")
	if strings.TrimSpace(msg) == "" {
		return len(p), nil
	}
	w.record.append(msg)
	if w.echo != nil {
		_, _ = io.WriteString(w.echo, msg)
	}
	if w.file != nil {
		w.file.Print(strings.TrimRight(msg, "\n"))
	}
	return len(p), nil
}
