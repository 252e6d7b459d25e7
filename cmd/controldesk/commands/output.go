package commands

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/controldesk/controldesk/internal/control"
)

// painter colors CLI output when it goes to a terminal.
type painter struct {
	enabled bool
}

func newPainter(w io.Writer) painter {
	f, ok := w.(*os.File)
	return painter{enabled: ok && term.IsTerminal(int(f.Fd()))}
}

func (p painter) paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if p.enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p painter) risk(r control.Risk) string {
	switch r {
	case control.RiskHigh:
		return p.paint(string(r), color.FgRed, color.Bold)
	case control.RiskMedium:
		return p.paint(string(r), color.FgYellow)
	}
	return p.paint(string(r), color.FgGreen)
}

func (p painter) status(s control.Status) string {
	switch s {
	case control.StatusApproved:
		return p.paint(string(s), color.FgGreen)
	case control.StatusPendingReview:
		return p.paint(string(s), color.FgMagenta)
	case control.StatusInProgress:
		return p.paint(string(s), color.FgCyan)
	}
	return p.paint(string(s), color.FgWhite)
}

func (p painter) evidence(s control.EvidenceStatus) string {
	switch s {
	case control.EvidenceApproved:
		return p.paint(s.Label(), color.FgGreen)
	case control.EvidenceRejected:
		return p.paint(s.Label(), color.FgRed)
	}
	return p.paint(s.Label(), color.FgMagenta)
}

func (p painter) ok(s string) string   { return p.paint(s, color.FgGreen) }
func (p painter) fail(s string) string { return p.paint(s, color.FgRed) }
func (p painter) dim(s string) string  { return p.paint(s, color.Faint) }
