package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HANSKMIEL/Optura/internal/audit"
	"github.com/HANSKMIEL/Optura/internal/config"
	"github.com/HANSKMIEL/Optura/internal/engine"
	"github.com/HANSKMIEL/Optura/internal/planner"
	"github.com/HANSKMIEL/Optura/internal/reporter"
	"github.com/HANSKMIEL/Optura/internal/runner"
	"github.com/HANSKMIEL/Optura/internal/store"
	"github.com/HANSKMIEL/Optura/internal/task"
	"github.com/HANSKMIEL/Optura/internal/ui"
)

var (
	flagConfig   string
	flagDB       string
	flagJSON     bool
	flagActor    string
	flagName     string
	flagGoal     string
	flagEstimate float64
	flagRequire  bool
	flagSpecFile string
	flagReason   string
	flagModel    string
	flagLimit    int
	flagVerbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "optura",
		Short: "Guarded task orchestration over a project dependency graph",
		Long: `Optura tracks a project's tasks as a dependency DAG, computes critical
paths and actionable work, and enforces a human-in-the-loop lifecycle:
no task completes without passing tests and, where required, explicit
sign-off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "optura.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "Acting identity recorded in the audit trail")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Log audit events to stderr")

	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(pathCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reprioritizeCmd())
	rootCmd.AddCommand(transitionCmd())
	rootCmd.AddCommand(runTestsCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		code := engine.CodeOf(err)
		if code != "" && code != engine.CodeInternal {
			fmt.Fprintf(os.Stderr, "%s [%s] %v\n", ui.Red("Error:"), code, err)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.Red("Error:"), err)
		}
		os.Exit(1)
	}
}

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg    config.Config
	db     *store.SQLite
	engine *engine.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	sinks := audit.MultiSink{db}
	if flagVerbose {
		sinks = append(sinks, audit.NewLogSink(os.Stderr))
	}

	eng := engine.New(db, sinks, engine.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ApproveFromPending:  cfg.ApproveFromPending,
		MaxRetries:          cfg.MaxRetries,
	})
	return &app{cfg: cfg, db: db, engine: eng}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p := &store.Project{
				ID:        uuid.NewString(),
				Name:      flagName,
				Goal:      flagGoal,
				CreatedAt: time.Now().UTC(),
			}
			if p.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if err := a.db.CreateProject(cmd.Context(), p); err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, p)
			}
			fmt.Printf("%s project %s %s\n", ui.Green("✓"), ui.Bold(p.Name), ui.Dim(p.ID))
			return nil
		},
	}
	create.Flags().StringVar(&flagName, "name", "", "Project name")
	create.Flags().StringVar(&flagGoal, "goal", "", "Project goal (used by plan)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.db.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, projects)
			}
			for _, p := range projects {
				fmt.Printf("%s %s %s\n", ui.TaskPrefix(p.ID), ui.Bold(p.Name), ui.Dim(p.Goal))
			}
			return nil
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			params := engine.CreateTaskParams{
				Name:             flagName,
				RequiresApproval: flagRequire,
				Actor:            actor(),
			}
			if params.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if cmd.Flags().Changed("estimate") {
				params.EstimateHours = &flagEstimate
			}
			if flagSpecFile != "" {
				spec, err := os.ReadFile(flagSpecFile)
				if err != nil {
					return fmt.Errorf("read spec: %w", err)
				}
				params.Spec = task.Document(spec)
			}

			t, err := a.engine.CreateTask(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, t)
			}
			fmt.Printf("%s task %s %s\n", ui.Green("✓"), ui.Bold(t.Name), ui.Dim(t.ID))
			return nil
		},
	}
	create.Flags().StringVar(&flagName, "name", "", "Task name")
	create.Flags().Float64Var(&flagEstimate, "estimate", 0, "Estimated hours")
	create.Flags().BoolVar(&flagRequire, "requires-approval", false, "Gate completion behind human approval")
	create.Flags().StringVar(&flagSpecFile, "spec", "", "Spec document (JSON file)")

	show := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.db.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, t)
			}
			fmt.Printf("%s %s %s\n", ui.StatusIcon(t.Status), ui.Bold(t.Name), ui.TaskPrefix(t.ID))
			fmt.Printf("  status: %s  spec: %v  tests: %v  approval: %v\n",
				ui.StatusLabel(t.Status), t.HasSpec(), t.HasTestResults(), t.RequiresApproval)
			return nil
		},
	}

	confidence := &cobra.Command{
		Use:   "confidence <task-id> <score>",
		Short: "Set a task's confidence score (may force the approval gate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			score, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse score: %w", err)
			}
			t, err := a.engine.SetConfidence(cmd.Context(), args[0], score, actor())
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, t)
			}
			gate := ""
			if t.RequiresApproval {
				gate = ui.Yellow(" (approval required)")
			}
			fmt.Printf("%s confidence %.2f%s\n", ui.Green("✓"), score, gate)
			return nil
		},
	}

	cmd.AddCommand(create, show, confidence)
	return cmd
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependency edges",
	}

	add := &cobra.Command{
		Use:   "add <project-id> <task-id> <prerequisite-id>",
		Short: "Make a task depend on a prerequisite",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			edge := task.Edge{TaskID: args[1], PrerequisiteID: args[2]}
			if err := a.engine.AddDependency(cmd.Context(), args[0], edge, actor()); err != nil {
				return err
			}
			fmt.Printf("%s %s now depends on %s\n", ui.Green("✓"),
				ui.TaskPrefix(edge.TaskID), ui.TaskPrefix(edge.PrerequisiteID))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <project-id> <task-id> <prerequisite-id>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			edge := task.Edge{TaskID: args[1], PrerequisiteID: args[2]}
			if err := a.engine.RemoveDependency(cmd.Context(), args[0], edge, actor()); err != nil {
				return err
			}
			fmt.Printf("%s %s no longer depends on %s\n", ui.Green("✓"),
				ui.TaskPrefix(edge.TaskID), ui.TaskPrefix(edge.PrerequisiteID))
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <project-id>",
		Short: "Show the validated dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.engine.BuildDependencyGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, view)
			}
			reporter.PrintGraph(os.Stdout, view)
			return nil
		},
	}
}

func pathCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "path <project-id>",
		Aliases: []string{"critical-path"},
		Short:   "Compute the critical path",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.CriticalPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, result)
			}
			reporter.PrintCriticalPath(os.Stdout, result)
			return nil
		},
	}
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <project-id>",
		Short: "Partition tasks into actionable, needs-approval and blocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			na, err := a.engine.NextActions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, na)
			}
			reporter.PrintNextActions(os.Stdout, na)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Roll up task counts and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.engine.Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, s)
			}
			reporter.PrintSummary(os.Stdout, s)
			return nil
		},
	}
}

func reprioritizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprioritize <project-id>",
		Short: "Recompute presentation order from the critical path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.Reprioritize(cmd.Context(), args[0], actor())
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, result)
			}
			reporter.PrintReprioritize(os.Stdout, result)
			return nil
		},
	}
}

func transitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <task-id> <action>",
		Short: "Run a guarded lifecycle transition",
		Long: `Actions: attach_spec, run_tests, approve, reject, complete, start.
Guard violations fail with a named error code; the task is never left
half-transitioned.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			req := engine.TransitionRequest{
				Action: engine.Action(args[1]),
				Actor:  actor(),
				Reason: flagReason,
			}
			if flagSpecFile != "" {
				doc, err := os.ReadFile(flagSpecFile)
				if err != nil {
					return fmt.Errorf("read document: %w", err)
				}
				switch req.Action {
				case engine.ActionAttachSpec:
					req.Spec = task.Document(doc)
				case engine.ActionRunTests:
					req.TestResults = task.Document(doc)
				}
			}

			t, err := a.engine.Transition(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, t)
			}
			fmt.Printf("%s %s -> %s\n", ui.Green("✓"), args[1], ui.StatusLabel(t.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSpecFile, "file", "", "Document payload (JSON file) for attach_spec / run_tests")
	cmd.Flags().StringVar(&flagReason, "reason", "", "Rejection reason")
	return cmd
}

func runTestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-tests <task-id>",
		Short: "Invoke the configured test executor and record its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(a.cfg.TestCommand) == 0 {
				return fmt.Errorf("no test_command configured in %s", flagConfig)
			}
			exec := runner.NewCommand(a.cfg.TestCommand[0], a.cfg.TestCommand[1:]...)
			exec.Timeout = time.Duration(a.cfg.TestTimeoutSeconds) * time.Second

			t, err := a.db.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results, err := exec.Run(cmd.Context(), t)
			if err != nil {
				return err
			}

			updated, err := a.engine.Transition(cmd.Context(), args[0], engine.TransitionRequest{
				Action:      engine.ActionRunTests,
				Actor:       actor(),
				TestResults: results,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, updated)
			}
			result := task.ParseTestResult(updated.TestResults)
			icon := ui.Green("✓")
			if !result.Passed() {
				icon = ui.Red("✗")
			}
			fmt.Printf("%s tests %s -> %s\n", icon, result.Status, ui.StatusLabel(updated.Status))
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <project-id>",
		Short: "Generate a task plan for the project goal with Claude",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			p, err := a.db.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			goal := flagGoal
			if goal == "" {
				goal = p.Goal
			}
			if goal == "" {
				return fmt.Errorf("project has no goal; pass --goal")
			}

			model := flagModel
			if model == "" {
				model = a.cfg.Model
			}
			client, err := planner.NewClient("", model)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "%s decomposing goal…\n", ui.Dim("planner:"))
			plan, err := client.GeneratePlan(ctx, goal)
			if err != nil {
				return err
			}

			ids, err := planner.Apply(ctx, a.engine, a.db, p.ID, plan, actor())
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, map[string]any{
					"summary": plan.Summary,
					"tasks":   ids,
				})
			}
			fmt.Printf("%s %d tasks planned\n%s\n", ui.Green("✓"), len(ids), plan.Summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagGoal, "goal", "", "Override the project goal")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model override")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <project-id>",
		Short: "Show the project's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.db.AuditTrail(cmd.Context(), args[0], flagLimit)
			if err != nil {
				return err
			}
			if flagJSON {
				return reporter.PrintJSON(os.Stdout, events)
			}
			for _, ev := range events {
				target := ""
				if ev.TaskID != "" {
					target = " " + ui.TaskPrefix(ev.TaskID)
				}
				fmt.Printf("%s %s%s %s\n",
					ui.Dim(ev.CreatedAt.Format(time.RFC3339)),
					ui.Bold(ev.Action), target, ui.Dim("by "+ev.Actor))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "Max events to show")
	return cmd
}

func actor() string {
	if flagActor != "" {
		return flagActor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "system"
}
