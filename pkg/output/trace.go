package output

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ritzau/emotion-graph/pkg/animation"
	"github.com/ritzau/emotion-graph/pkg/graph"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

// PrintTraceReport prints a normalized propagation log. When ix is non-nil each step
// is resolved against the network the way the animation would resolve it, and steps
// without a link are flagged. It returns the number of unresolved steps.
func PrintTraceReport(w io.Writer, tr *trace.Trace, ix *graph.Index, cfg animation.Config) int {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	bold.Fprintln(w, "Propagation Log")
	bold.Fprintln(w, "===============")
	if tr.Seed != nil {
		fmt.Fprintf(w, "Seed: %s at t=%d\n", tr.Seed.UserID, tr.Seed.TimeStep)
	} else {
		yellow.Fprintln(w, "Seed: none (the publishing user is used)")
	}
	fmt.Fprintf(w, "Steps: %d\n", len(tr.Steps))
	fmt.Fprintf(w, "Participants: %d\n", len(tr.Participants()))
	fmt.Fprintf(w, "Animation length: %s\n", animationLength(len(tr.Steps), cfg))
	fmt.Fprintln(w)

	misses := 0
	for i, s := range tr.Steps {
		fmt.Fprintf(w, "  %3d  t=%-4d %s → %s", i, s.TimeStep, s.Sender, s.Receiver)
		if s.Action != "" {
			faint.Fprintf(w, " (%s)", s.Action)
		}
		if ix != nil {
			if link, ok := ix.FindLink(s.Sender, s.Receiver); ok {
				faint.Fprintf(w, "  link %d", link)
			} else {
				red.Fprint(w, "  no link")
				misses++
			}
		}
		fmt.Fprintln(w)
	}

	if len(tr.Dropped) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintf(w, "DROPPED ENTRIES (%d):\n", len(tr.Dropped))
		for _, d := range tr.Dropped {
			fmt.Fprintf(w, "  entry %d: %s\n", d.Entry, d.Reason)
		}
	}

	if ix != nil {
		fmt.Fprintln(w)
		if misses == 0 {
			green.Fprintln(w, "✓ Every step follows a link of the network")
		} else {
			red.Fprintf(w, "%d step(s) have no link and will be skipped\n", misses)
		}
	}
	return misses
}

// animationLength is when the last reveal settles: step i starts at i × delay
func animationLength(steps int, cfg animation.Config) time.Duration {
	if steps == 0 {
		return 0
	}
	return time.Duration(steps-1)*cfg.InterStepDelay + cfg.RevealDuration
}
