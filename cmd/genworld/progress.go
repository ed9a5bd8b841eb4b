package main

import (
	"fmt"
	"io"
	"time"

	"github.com/worldforge/server/internal/generation"
)

// lineSink prints one line per progress event.
type lineSink struct {
	out   io.Writer
	start time.Time
}

func newLineSink(out io.Writer) *lineSink {
	return &lineSink{out: out, start: time.Now()}
}

func (s *lineSink) Progress(e generation.Event) {
	elapsed := time.Since(s.start).Truncate(time.Millisecond)
	if e.HasStep {
		fmt.Fprintf(s.out, "[%8s] %-16s step %-5d %s\n", elapsed, e.Stage, e.Step, e.Message)
		return
	}
	fmt.Fprintf(s.out, "[%8s] %-16s %s\n", elapsed, e.Stage, e.Message)
}

func (s *lineSink) Completed() {
	fmt.Fprintf(s.out, "[%8s] done\n", time.Since(s.start).Truncate(time.Millisecond))
}
