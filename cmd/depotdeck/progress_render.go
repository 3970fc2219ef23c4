package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"

	"depotdeck/internal/logging"
	"depotdeck/internal/progress"
)

// progressRenderer draws install snapshots: a live bar on a terminal, and
// one line per phase plus 10% steps otherwise.
type progressRenderer struct {
	out     io.Writer
	live    bool
	bar     *progressbar.ProgressBar
	max     uint64
	phase   progress.Phase
	sampler *logging.ProgressSampler
	caser   cases.Caser
}

func newProgressRenderer(out io.Writer, live bool) *progressRenderer {
	return &progressRenderer{
		out:     out,
		live:    live,
		sampler: logging.NewProgressSampler(10),
		caser:   cases.Title(textlang.English),
	}
}

func (r *progressRenderer) phaseLabel(phase progress.Phase) string {
	return r.caser.String(string(phase))
}

func (r *progressRenderer) render(snap progress.Snapshot) {
	if snap.Phase != r.phase {
		r.closeBar()
		if r.phase == progress.PhasePaused {
			// Print the resumed percent right away.
			r.sampler.Reset()
		}
		r.phase = snap.Phase
		switch {
		case snap.Phase == progress.PhasePaused:
			fmt.Fprintf(r.out, "Paused during %s\n", r.phaseLabel(snap.ResumePhase))
			return
		case snap.Phase.Terminal(), snap.Phase == progress.PhaseIdle:
			return
		}
		if r.live {
			r.openBar(snap)
		} else {
			fmt.Fprintf(r.out, "%s...\n", r.phaseLabel(snap.Phase))
		}
	}
	if snap.Phase.Terminal() || snap.Phase == progress.PhasePaused {
		return
	}

	if r.bar != nil {
		if snap.BytesTotal != r.max {
			r.max = snap.BytesTotal
			r.bar.ChangeMax64(int64(max(r.max, 1)))
		}
		r.bar.Describe(r.describe(snap))
		_ = r.bar.Set64(int64(snap.BytesDone))
		return
	}
	if snap.BytesTotal > 0 && r.sampler.ShouldLog(snap.Percent(), string(snap.Phase)) {
		fmt.Fprintf(r.out, "  %3.0f%%  %s / %s%s\n",
			snap.Percent(),
			humanize.IBytes(snap.BytesDone),
			humanize.IBytes(snap.BytesTotal),
			rateSuffix(snap),
		)
	}
}

func (r *progressRenderer) describe(snap progress.Snapshot) string {
	label := r.phaseLabel(snap.Phase)
	if snap.CurrentDepot != "" && snap.DepotsTotal > 0 {
		label = fmt.Sprintf("%s depot %s (%d/%d)", label, snap.CurrentDepot, snap.DepotsDone+1, snap.DepotsTotal)
	}
	return label
}

func (r *progressRenderer) openBar(snap progress.Snapshot) {
	r.max = snap.BytesTotal
	r.bar = progressbar.NewOptions64(int64(max(r.max, 1)),
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.describe(snap)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
	)
}

func (r *progressRenderer) closeBar() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
	r.max = 0
}

// finish closes the bar and prints the outcome of the terminal snapshot.
func (r *progressRenderer) finish(snap progress.Snapshot, elapsed time.Duration) {
	r.closeBar()
	switch snap.Phase {
	case progress.PhaseFinished:
		fmt.Fprintf(r.out, "Installed %s (%s) on %s in %s\n",
			snap.TitleName, snap.TitleID, snap.Target, elapsed.Round(time.Second))
	case progress.PhaseCancelled:
		fmt.Fprintf(r.out, "Install of %s cancelled\n", snap.TitleName)
	case progress.PhaseError:
		if snap.Err != nil {
			fmt.Fprintf(r.out, "Install of %s failed during %s: %s\n",
				snap.TitleName, r.phaseLabel(snap.Err.Phase), snap.Err.Detail)
		}
	}
}

func rateSuffix(snap progress.Snapshot) string {
	if snap.Rate <= 0 {
		return ""
	}
	suffix := fmt.Sprintf(", %s/s", humanize.IBytes(uint64(snap.Rate)))
	if eta := snap.ETA(); eta > 0 {
		suffix += ", " + eta.Round(time.Second).String() + " left"
	}
	return suffix
}
