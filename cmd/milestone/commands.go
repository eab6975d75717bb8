package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joshharrison/milestone/internal/api"
	"github.com/joshharrison/milestone/internal/authz"
	"github.com/joshharrison/milestone/internal/graph"
	"github.com/joshharrison/milestone/internal/importer"
	"github.com/joshharrison/milestone/internal/reporter"
	"github.com/joshharrison/milestone/internal/schedule"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/joshharrison/milestone/internal/ui"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>...",
		Short: "Load projects, WBS items and tasks from HCL files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			snap, err := importer.Load(ctx, args...)
			if err != nil {
				return err
			}
			if err := e.store.Load(ctx, snap); err != nil {
				return fmt.Errorf("store snapshot: %w", err)
			}

			if flagJSON {
				return outputJSON(map[string]int{
					"projects":  len(snap.Projects),
					"wbs_items": len(snap.WBSItems),
					"tasks":     len(snap.Tasks),
					"members":   len(snap.Members),
				})
			}
			fmt.Printf("✅ %s %d projects, %d WBS items, %d tasks, %d members\n",
				ui.Green("Imported"), len(snap.Projects), len(snap.WBSItems), len(snap.Tasks), len(snap.Members))
			return nil
		},
	}
}

func computeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute <project-id>",
		Short: "Compute and store a new schedule run for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			raw := flagRunType
			if raw == "" {
				raw = e.cfg.Schedule.DefaultRunType
			}
			runType, err := schedule.ParseRunType(raw)
			if err != nil {
				return err
			}

			run, err := schedule.New(e.store, e.store).ComputeSchedule(ctx, projectID, runType)
			if err != nil {
				return describeError(err)
			}
			return printRun(run)
		},
	}
	cmd.Flags().StringVar(&flagRunType, "type", "", "Run type: initial or rolling (default from config)")
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <project-id>",
		Short: "Show the most recent schedule run of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			run, err := schedule.New(e.store, e.store).LatestRun(ctx, projectID)
			if err != nil {
				return err
			}
			return printRun(run)
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored schedule run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID(args[0], "run id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			run, err := schedule.New(e.store, e.store).GetRun(ctx, runID)
			if err != nil {
				return err
			}
			return printRun(run)
		},
	}
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <project-id>",
		Short: "List the schedule runs of a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			runs, err := schedule.New(e.store, e.store).ListRuns(ctx, projectID)
			if err != nil {
				return err
			}
			if flagJSON {
				out := make([]json.RawMessage, 0, len(runs))
				for _, run := range runs {
					data, err := reporter.New(run, nil).JSON()
					if err != nil {
						return err
					}
					out = append(out, data)
				}
				return outputJSON(out)
			}
			ui.PrintBanner(os.Stdout, fmt.Sprintf("project %d runs", projectID))
			reporter.PrintRuns(os.Stdout, runs)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a schedule run and its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID(args[0], "run id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			if err := schedule.New(e.store, e.store).DeleteRun(ctx, runID); err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(map[string]bool{"ok": true})
			}
			fmt.Printf("🗑  %s run #%d\n", ui.Green("Deleted"), runID)
			return nil
		},
	}
}

func vizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viz <run-id>",
		Short: "Print a schedule run as a table, an ASCII graph or Graphviz DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID(args[0], "run id")
			if err != nil {
				return err
			}
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			run, err := e.store.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			// Edges are not stored with the run; take them from the current
			// task catalogue.
			tasks, err := e.store.ListTasksWithDependencies(ctx, run.ProjectID)
			if err != nil {
				return fmt.Errorf("load tasks: %w", err)
			}
			g := graph.Build(tasks, run.ProjectID)

			rep := reporter.New(run, g)
			switch flagFormat {
			case "dot":
				rep.PrintDOT(os.Stdout)
			case "ascii":
				rep.PrintASCII(os.Stdout)
			case "table":
				rep.PrintTable(os.Stdout)
			default:
				return fmt.Errorf("unknown format %q (want table, ascii or dot)", flagFormat)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "ascii", "Output format: table, ascii or dot")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the schedule run HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.store.Close()

			addr := e.cfg.Server.Addr
			if flagAddr != "" {
				addr = flagAddr
			}

			sched := &schedule.Guarded{
				Service: schedule.New(e.store, e.store),
				Auth:    authz.Members{Catalog: e.store},
			}
			e.logger.Info("listening", "addr", addr, "driver", e.cfg.Store.Driver, "store", e.cfg.Store.Path)
			fmt.Fprintf(os.Stderr, "🌐 %s %s\n", ui.BoldCyan("Serving on"), addr)
			if err := api.Serve(ctx, addr, api.Handler(sched, e.logger)); err != nil {
				return err
			}
			e.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return outputJSON(cfg)
		},
	}
}

// printRun writes a run as JSON or as the terminal table.
func printRun(run store.ScheduleRun) error {
	rep := reporter.New(run, nil)
	if flagJSON {
		data, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	rep.PrintTable(os.Stdout)
	return nil
}
