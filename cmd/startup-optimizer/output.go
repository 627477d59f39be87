package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/startup-optimizer/internal/health"
	"github.com/breeze-rmm/startup-optimizer/internal/optimizer"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table(w)
		return nil
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printProfile(w io.Writer, p *models.StartupProfile, report *health.Report) {
	fmt.Fprintf(w, "Scan %s at %s\n", p.ScanID, p.ScannedAt.Format("2006-01-02 15:04:05 MST"))
	if p.Partial() {
		fmt.Fprintf(w, "Estimated startup time: %.1fs (partial, %d source(s) failed)\n", p.TotalStartupTimeSeconds, len(p.CollectionErrors))
	} else {
		fmt.Fprintf(w, "Estimated startup time: %.1fs\n", p.TotalStartupTimeSeconds)
	}

	if len(p.Autoruns) > 0 {
		fmt.Fprintln(w, "\nStartup programs:")
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "RANK\tNAME\tLOAD\tIMPACT\tSTATUS\tPUBLISHER\tID")
		for _, e := range p.Autoruns {
			name := e.Name
			if e.Protected {
				name += " (protected)"
			}
			fmt.Fprintf(tw, "%d\t%s\t%.2fs\t%s\t%s\t%s\t%s\n",
				e.Rank, name, e.LoadTimeSeconds, e.Impact, e.Status, dash(e.Publisher), e.ID)
		}
		tw.Flush()
	}

	if len(p.Services) > 0 {
		fmt.Fprintln(w, "\nServices:")
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "RANK\tSERVICE\tLOAD\tSTARTUP\tSTATUS\tID")
		for _, s := range p.Services {
			fmt.Fprintf(tw, "%d\t%s\t%.2fs\t%s\t%s\t%s\n",
				s.Rank, s.Label(), s.LoadTimeSeconds, s.StartupType, s.Status, s.ID)
		}
		tw.Flush()
	}

	if len(p.BootEvents) > 0 {
		fmt.Fprintln(w, "\nBoot phases:")
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "PHASE\tDURATION\tSOURCE")
		for _, ev := range p.BootEvents {
			fmt.Fprintf(tw, "%s\t%.2fs\t%s\n", ev.Name, ev.DurationSeconds, dash(ev.Source))
		}
		tw.Flush()
	}

	if report != nil {
		fmt.Fprintf(w, "\nSources (overall %s):\n", report.Status)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "SOURCE\tSTATUS\tITEMS\tTOOK\tMESSAGE")
		for _, c := range report.Sources {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.Name, c.Status, c.Items, c.Duration.Round(time.Millisecond), dash(c.Message))
		}
		tw.Flush()
	}

	for _, e := range p.CollectionErrors {
		fmt.Fprintf(w, "warning: %s: %s\n", e.Source, e.Message)
	}
}

func printRecommendations(w io.Writer, recs []models.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recommendations: startup looks healthy.")
		return
	}
	for i, r := range recs {
		fmt.Fprintf(w, "%2d. [%s] %s\n", i+1, strings.ToUpper(r.Severity.String()), r.Text)
		if r.EntryID != "" && r.Action != "" {
			fmt.Fprintf(w, "    startup-optimizer optimize %q %s%s\n", r.EntryID, r.Action, actionFlags(r))
		}
	}
}

func actionFlags(r models.Recommendation) string {
	if r.Action == models.ActionDelay {
		return fmt.Sprintf(" --delay %d", r.DelaySeconds)
	}
	return ""
}

func printResults(w io.Writer, results []optimizer.Result) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ENTRY\tACTION\tRESULT\tSTATUS\tMESSAGE")
	for _, r := range results {
		outcome := "ok"
		switch {
		case r.Busy:
			outcome = "busy"
		case !r.Success:
			outcome = "failed"
		case !r.Changed:
			outcome = "unchanged"
		}
		status := r.Status.String()
		if r.StartupType != "" {
			status += " (" + string(r.StartupType) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.EntryID, r.Action, outcome, dash(status), r.Message)
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
