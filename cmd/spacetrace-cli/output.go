package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jjcapestany/space-trace/internal/conflict"
	"github.com/jjcapestany/space-trace/internal/safety"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

var (
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	dangerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5733"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC300"))
	safeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
)

func severityStyle(s safety.Severity) lipgloss.Style {
	switch s {
	case safety.SeverityCritical:
		return criticalStyle
	case safety.SeverityDanger:
		return dangerStyle
	case safety.SeverityWarning:
		return warningStyle
	default:
		return safeStyle
	}
}

func statusStyle(s safety.Status) lipgloss.Style {
	switch s {
	case safety.StatusDanger:
		return dangerStyle
	case safety.StatusWarning:
		return warningStyle
	default:
		return safeStyle
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTrajectory(w io.Writer, samples []trajectory.Point) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tLAT\tLON\tALT (m)")
	for i, s := range samples {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.0f\n",
			i, s.Time.UTC().Format(time.RFC3339), s.Position.Lat, s.Position.Lon, s.Position.Alt)
	}
	return tw.Flush()
}

// printReport writes a summary line followed by the warning table.
func printReport(w io.Writer, r *safety.Report) error {
	fmt.Fprintf(w, "%s  flight %d (%s): %d objects checked, %d close approaches\n",
		statusStyle(r.Status).Render(string(r.Status)),
		r.FlightID, r.FlightName, r.TotalObjectsChecked, r.ConflictsFound)
	if len(r.Warnings) == 0 {
		fmt.Fprintln(w)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("SEVERITY")+"\tNORAD\tNAME\tDISTANCE (km)\tTIME")
	for _, wn := range r.Warnings {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.3f\t%s\n",
			severityStyle(wn.Severity).Render(wn.Severity.String()),
			wn.NORADID, wn.ObjectName, wn.ClosestDistanceKm,
			wn.TimeOfApproach.UTC().Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func printConflicts(w io.Writer, conflicts []conflict.Conflict) error {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, safeStyle.Render("no conflicts"))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FLIGHT A\tFLIGHT B\tPOINTS\tFIRST TIME\tFIRST LAT\tFIRST LON\tFIRST ALT (m)")
	for _, c := range conflicts {
		p := c.Points[0]
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%.4f\t%.4f\t%.0f\n",
			c.FlightA, c.FlightB,
			dangerStyle.Render(fmt.Sprint(len(c.Points))),
			p.Time.UTC().Format(time.RFC3339), p.Lat, p.Lon, p.Alt)
	}
	return tw.Flush()
}
