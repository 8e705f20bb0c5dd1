package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/samcharles93/convtune/internal/perfconfig"
	"github.com/samcharles93/convtune/internal/solver"
)

// searchProgress renders one progress bar per GenericSearch run.
type searchProgress struct {
	w      io.Writer
	bar    *progressbar.ProgressBar
	failed int
}

var _ solver.SearchObserver = (*searchProgress)(nil)

func newSearchProgress(w io.Writer) *searchProgress {
	return &searchProgress{w: w}
}

func (sp *searchProgress) SearchStarted(solverID string, total int, spare bool) {
	desc := solverID
	if spare {
		desc += " (spare)"
	}
	sp.failed = 0
	sp.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(sp.w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("configs"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(sp.w) }),
	)
}

func (sp *searchProgress) CandidateMeasured(_ string, index int, _ perfconfig.Any, _ time.Duration, err error) {
	if sp.bar == nil {
		return
	}
	if err != nil {
		sp.failed++
	}
	_ = sp.bar.Set(index + 1)
}

func (sp *searchProgress) SearchDone(solverID string, report solver.SearchReport, err error) {
	if sp.bar == nil {
		if err != nil {
			_, _ = fmt.Fprintf(sp.w, "%s: search not started: %v\n", solverID, err)
		}
		return
	}
	_ = sp.bar.Finish()
	sp.bar = nil
	if err != nil {
		_, _ = fmt.Fprintf(sp.w, "%s: search failed: %v\n", solverID, err)
		return
	}
	if sp.failed > 0 {
		_, _ = fmt.Fprintf(sp.w, "%s: %d of %d configs failed\n", solverID, sp.failed, report.Total)
	}
}

// observerOrNil keeps a nil bar from becoming a non-nil interface.
func observerOrNil(sp *searchProgress) solver.SearchObserver {
	if sp == nil {
		return nil
	}
	return sp
}
