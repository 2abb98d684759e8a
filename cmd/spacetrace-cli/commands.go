package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jjcapestany/space-trace/internal/conflict"
	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/proximity"
	"github.com/jjcapestany/space-trace/internal/safety"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

func newPropagateCmd(opts *rootOptions) *cobra.Command {
	var (
		tlePath string
		noradID int
		at      string
	)
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Resolve one catalog object's position at an instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				t = parsed.UTC()
			}

			cat, err := loadCatalog(tlePath, opts.logger(cmd))
			if err != nil {
				return err
			}
			obj, ok := cat.Lookup(noradID)
			if !ok {
				return fmt.Errorf("norad %d not in %s", noradID, tlePath)
			}
			pos, err := obj.Record.Propagate(t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return writeJSON(out, struct {
					NORADID  int          `json:"norad_id"`
					Name     string       `json:"name"`
					Time     time.Time    `json:"time"`
					Position geo.Position `json:"position"`
				}{obj.NORADID, obj.Name, t, pos})
			}
			fmt.Fprintf(out, "%s (%d) at %s\n", obj.Name, obj.NORADID, t.Format(time.RFC3339Nano))
			fmt.Fprintf(out, "  lat %.4f  lon %.4f  alt %.1f km\n", pos.Lat, pos.Lon, pos.Alt/1000)
			return nil
		},
	}
	cmd.Flags().StringVar(&tlePath, "tle", "", "3-line TLE file")
	cmd.Flags().IntVar(&noradID, "norad", 0, "NORAD catalog number")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 instant (default now)")
	_ = cmd.MarkFlagRequired("tle")
	_ = cmd.MarkFlagRequired("norad")
	return cmd
}

func newTrajectoryCmd(opts *rootOptions) *cobra.Command {
	var (
		flightsPath string
		id          int64
		samples     int
	)
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Sample a flight's trajectory",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := loadFlights(flightsPath)
			if err != nil {
				return err
			}
			p, err := findPlan(plans, id)
			if err != nil {
				return err
			}
			points, err := trajectory.Sample(p, samples)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), points)
			}
			return printTrajectory(cmd.OutOrStdout(), points)
		},
	}
	cmd.Flags().StringVar(&flightsPath, "flights", "", "JSON file of flight plans")
	cmd.Flags().Int64Var(&id, "id", 0, "flight id")
	cmd.Flags().IntVar(&samples, "samples", trajectory.DefaultSamples, "number of samples")
	_ = cmd.MarkFlagRequired("flights")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		tlePath     string
		flightsPath string
		id          int64
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Check flights for close approaches with catalog objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			plans, err := loadFlights(flightsPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("id") {
				p, err := findPlan(plans, id)
				if err != nil {
					return err
				}
				plans = []flight.Plan{p}
			}
			cat, err := loadCatalog(tlePath, logger)
			if err != nil {
				return err
			}

			index := proximity.NewIndex(orbit.NewWorkerPool(opts.workers, logger), logger)
			reports, err := analyzePlans(cmd, index, cat, plans)
			if opts.output == "json" {
				if werr := writeJSON(cmd.OutOrStdout(), reports); werr != nil {
					return werr
				}
				return err
			}
			for _, r := range reports {
				if perr := printReport(cmd.OutOrStdout(), r); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&tlePath, "tle", "", "3-line TLE file")
	cmd.Flags().StringVar(&flightsPath, "flights", "", "JSON file of flight plans")
	cmd.Flags().Int64Var(&id, "id", 0, "analyze only this flight")
	_ = cmd.MarkFlagRequired("tle")
	_ = cmd.MarkFlagRequired("flights")
	return cmd
}

// analyzePlans runs one safety analysis per plan. Reports keep plan order;
// failed plans are left out and their errors joined.
func analyzePlans(cmd *cobra.Command, index *proximity.Index, cat *orbit.Catalog, plans []flight.Plan) ([]*safety.Report, error) {
	ctx := cmd.Context()
	results := make([]*safety.Report, len(plans))
	errs := make([]error, len(plans))

	var g errgroup.Group
	g.SetLimit(2)
	for i, p := range plans {
		g.Go(func() error {
			if err := p.CheckGeometry(); err != nil {
				errs[i] = fmt.Errorf("flight %d: %w", p.ID, err)
				return nil
			}
			candidates, err := index.Candidates(ctx, cat.Objects, p)
			if err != nil {
				errs[i] = fmt.Errorf("flight %d: %w", p.ID, err)
				return nil
			}
			r, err := safety.Analyze(ctx, p, candidates)
			if err != nil {
				errs[i] = fmt.Errorf("flight %d: %w", p.ID, err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	reports := make([]*safety.Report, 0, len(plans))
	for _, r := range results {
		if r != nil {
			reports = append(reports, r)
		}
	}
	return reports, errors.Join(errs...)
}

func newConflictsCmd(opts *rootOptions) *cobra.Command {
	var flightsPath string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Find pairs of flights that come too close",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := loadFlights(flightsPath)
			if err != nil {
				return err
			}
			conflicts, err := conflict.Detect(cmd.Context(), plans)
			if conflicts == nil {
				conflicts = []conflict.Conflict{}
			}
			if opts.output == "json" {
				if werr := writeJSON(cmd.OutOrStdout(), conflicts); werr != nil {
					return werr
				}
				return err
			}
			if perr := printConflicts(cmd.OutOrStdout(), conflicts); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&flightsPath, "flights", "", "JSON file of flight plans")
	_ = cmd.MarkFlagRequired("flights")
	return cmd
}
