package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"phasegate/internal/app"
	"phasegate/internal/config"
	"phasegate/internal/db"
	"phasegate/internal/domain"
	"phasegate/internal/engine"
	"phasegate/internal/engine/auth"
	"phasegate/internal/logging"
	"phasegate/internal/server"
	"phasegate/internal/store"
	"phasegate/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "pg",
	Short: "Phase-gate lifecycle CLI",
	Long: `pg moves steel work packages through their production lifecycle:
planning -> detailing -> fabrication -> delivery -> erection -> closeout -> completed.
Every forward move passes a readiness gate built from the project's supporting records
(drawings, RFIs, fabrication packages, QC checklists, deliveries, site readiness,
constraints, field installs, punch items and closeout documents). A blocked move is
reported with its reasons and suggested actions and leaves the work package untouched.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PHASEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the audit log")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the only project)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(wpCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(gateCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.InitProject(ctx, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := store.FilterAs[domain.Project](ctx, a.Store, store.Projects, nil)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func wpCmd() *cobra.Command {
	wp := &cobra.Command{Use: "wp", Short: "Manage work packages"}
	wp.AddCommand(wpCreateCmd())
	wp.AddCommand(wpListCmd())
	wp.AddCommand(wpShowCmd())
	return wp
}

func wpCreateCmd() *cobra.Command {
	var opts engine.WorkPackageCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work package in the planning phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				projectID, err := app.ResolveProject(ctx, a.Store, viper.GetString("project"))
				if err != nil {
					return err
				}
				opts.ProjectID = projectID
				wp, err := a.Engine.CreateWorkPackage(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(wp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "work package id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.ScopeDescription, "scope", "", "scope description")
	cmd.Flags().StringSliceVar(&opts.DrawingSetIDs, "drawing", nil, "linked drawing set id (repeatable)")
	cmd.Flags().StringVar(&opts.ReleaseGroup, "release-group", "", "release group for RFI matching")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func wpListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List work packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListWorkPackages(ctx, viper.GetString("project"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Project", "Name", "Phase", "Version")
				for _, wp := range items {
					tw.AppendRow(table.Row{wp.ID, wp.ProjectID, wp.Name, wp.Phase, wp.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func wpShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				wp, err := a.Engine.GetWorkPackage(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(wp)
			})
		},
	}
}

func recordsCmd() *cobra.Command {
	rec := &cobra.Command{
		Use:   "records",
		Short: "Manage supporting records",
		Long:  "Supporting records are the evidence gates read: " + collectionNames() + ".",
	}
	rec.AddCommand(recordsAddCmd())
	rec.AddCommand(recordsUpdateCmd())
	return rec
}

func collectionNames() string {
	names := make([]string, 0, len(store.Collections))
	for _, c := range store.Collections {
		if c != store.WorkPackages {
			names = append(names, string(c))
		}
	}
	return strings.Join(names, ", ")
}

func recordsAddCmd() *cobra.Command {
	var id, data string
	var sets []string
	cmd := &cobra.Command{
		Use:   "add <collection>",
		Short: "Add a supporting record",
		Example: `  pg records add drawing_sets --id d1 --set project_id=p1 --set status=FFF
  pg records add deliveries --data '{"work_package_id":"wp1","status":"received"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := store.ParseCollection(args[0])
			if err != nil {
				return err
			}
			fields, err := parseFields(data, sets)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Engine.AddRecord(ctx, c, id, fields)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"collection": c, "id": rec.ID, "version": rec.Version, "fields": rec.Fields})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id (generated when empty)")
	cmd.Flags().StringVar(&data, "data", "", "fields as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field as key=value; JSON values are decoded (repeatable)")
	return cmd
}

func recordsUpdateCmd() *cobra.Command {
	var data string
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <collection> <id>",
		Short: "Update fields of a supporting record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := store.ParseCollection(args[0])
			if err != nil {
				return err
			}
			if c == store.WorkPackages {
				return errors.New("work package phases change only through pg advance")
			}
			fields, err := parseFields(data, sets)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Store.Update(ctx, c, args[1], fields, 0)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"collection": c, "id": rec.ID, "version": rec.Version, "fields": rec.Fields})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "fields as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field as key=value (repeatable)")
	return cmd
}

func parseFields(data string, sets []string) (store.Fields, error) {
	fields := store.Fields{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			fields[k] = decoded
		} else {
			fields[k] = v
		}
	}
	return fields, nil
}

func phaseCmd() *cobra.Command {
	ph := &cobra.Command{Use: "phase", Short: "Inspect the lifecycle graph"}
	ph.AddCommand(&cobra.Command{
		Use:   "next <phase>",
		Short: "List the legal successors of a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{"phase": p, "next": engine.NextPhases(p)})
		},
	})
	ph.AddCommand(&cobra.Command{
		Use:   "path <from> <to>",
		Short: "Show the forward path between two phases",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domain.ParsePhase(args[0])
			if err != nil {
				return err
			}
			to, err := domain.ParsePhase(args[1])
			if err != nil {
				return err
			}
			path, err := engine.DefaultGraph().Path(from, to)
			if err != nil {
				return err
			}
			return printJSONOrTable(path)
		},
	})
	return ph
}

type optionFlags struct {
	noCloseoutDocs     bool
	noFinalInspection  bool
	noClientAcceptance bool
	checkMaterial      bool
}

func (f *optionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noCloseoutDocs, "no-closeout-docs", false, "do not require closeout documents")
	cmd.Flags().BoolVar(&f.noFinalInspection, "no-final-inspection", false, "do not require a passed final inspection")
	cmd.Flags().BoolVar(&f.noClientAcceptance, "no-client-acceptance", false, "do not require client acceptance")
	cmd.Flags().BoolVar(&f.checkMaterial, "check-material", false, "require every delivery to be received before erection")
}

func (f *optionFlags) apply(cmd *cobra.Command, base engine.Options) engine.Options {
	if cmd.Flags().Changed("no-closeout-docs") {
		base.RequireCloseoutDocs = !f.noCloseoutDocs
	}
	if cmd.Flags().Changed("no-final-inspection") {
		base.RequireFinalInspection = !f.noFinalInspection
	}
	if cmd.Flags().Changed("no-client-acceptance") {
		base.RequireClientAcceptance = !f.noClientAcceptance
	}
	if cmd.Flags().Changed("check-material") {
		base.CheckMaterialAvailability = f.checkMaterial
	}
	return base
}

func gateCmd() *cobra.Command {
	g := &cobra.Command{Use: "gate", Short: "Evaluate readiness gates"}
	var flags optionFlags
	check := &cobra.Command{
		Use:   "check <work-package> [target]",
		Short: "Evaluate a transition without applying it",
		Long:  "Without a target every successor of the current phase is evaluated.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := flags.apply(cmd, a.Engine.DefaultOptions())
				var traces []domain.TransitionTrace
				if len(args) == 2 {
					target, err := domain.ParsePhase(args[1])
					if err != nil {
						return err
					}
					tr, err := a.Engine.Evaluate(ctx, args[0], target, opts)
					if err != nil {
						return err
					}
					traces = append(traces, tr)
				} else {
					_, all, err := a.Engine.Readiness(ctx, args[0], opts)
					if err != nil {
						return err
					}
					traces = all
				}
				if viper.GetBool("json") {
					return printJSON(traces)
				}
				for _, tr := range traces {
					printTrace(tr)
				}
				return nil
			})
		},
	}
	flags.bind(check)
	g.AddCommand(check)
	return g
}

func advanceCmd() *cobra.Command {
	var flags optionFlags
	cmd := &cobra.Command{
		Use:   "advance <work-package> <target>",
		Short: "Evaluate and apply a phase transition",
		Long:  "A blocked transition prints its reasons and exits non-zero; the work package is left unchanged.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParsePhase(args[1])
			if err != nil {
				return err
			}
			actor := viper.GetString("actor-id")
			principal := auth.Principal{ActorID: actor, Scopes: []string{auth.ScopeRead, auth.ScopePhaseWrite}, Source: "cli"}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := auth.PhaseWriter(principal, a.Store)
				if err != nil {
					return err
				}
				ctx = engine.WithActor(ctx, actor)
				wp, trace, err := a.Engine.Advance(ctx, w, args[0], target, flags.apply(cmd, a.Engine.DefaultOptions()))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(map[string]any{"applied": trace.Pass, "work_package": wp, "trace": trace}); err != nil {
						return err
					}
				} else {
					printTrace(trace)
				}
				if !trace.Pass {
					return fmt.Errorf("transition %s blocked", trace.Edge())
				}
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Transition audit log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail [work-package]",
		Short: "Show the newest transition events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wpID := ""
			if len(args) == 1 {
				wpID = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Events.ListTransitions(ctx, wpID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Work Package", "Edge", "Actor", "Reasons")
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.WorkPackageID, ev.Trace.Edge(), ev.ActorID, strings.Join(ev.Trace.Reasons, "; ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	lg.AddCommand(tail)
	return lg
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Manage API tokens"}
	var actor string
	var scopes []string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token signed with PHASEGATE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer := auth.Issuer{Secret: []byte(viper.GetString("jwt-secret")), TTL: ttl}
			token, err := issuer.Mint(actor, scopes)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "actor_id": actor, "scopes": scopes})
			}
			fmt.Println(token)
			return nil
		},
	}
	mint.Flags().StringVar(&actor, "actor", "", "token subject")
	mint.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead}, "granted scope (phase:read, phase:write, records:write)")
	mint.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = mint.MarkFlagRequired("actor")
	tok.AddCommand(mint)
	return tok
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
		Long:  "phasegate.yml selects the store driver, evaluation timeout, gate strictness defaults and status vocabularies.",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default phasegate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(c)
		},
	})
	return cfg
}

// handlerSwap lets a config reload replace the API handler in place.
type handlerSwap struct {
	h atomic.Pointer[http.Handler]
}

func (s *handlerSwap) set(h http.Handler) { s.h.Store(&h) }

func (s *handlerSwap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.h.Load()).ServeHTTP(w, r)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOrDefault(workspace)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("PHASEGATE_JWT_SECRET is required for bearer auth")
			}
			metrics, err := telemetry.InitMeterProvider(ctx, "phasegate")
			if err != nil {
				return err
			}
			if err := telemetry.InitMetrics(); err != nil {
				return err
			}
			a, err := app.Open(ctx, workspace, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			build := func(e engine.Engine) (http.Handler, error) {
				return server.New(server.Config{
					Engine:   e,
					Events:   a.Events,
					Issuer:   auth.Issuer{Secret: []byte(secret)},
					BasePath: basePath,
					Metrics:  metrics,
					Log:      log.Named("http"),
				})
			}
			h, err := build(a.Engine)
			if err != nil {
				return err
			}
			swap := &handlerSwap{}
			swap.set(h)

			srv := &http.Server{Addr: addr, Handler: swap, ReadHeaderTimeout: 10 * time.Second}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return config.Watch(gctx, workspace, log.Named("config"), func(next *config.Config) {
					if next.Store != cfg.Store {
						log.Warn("store settings changed; restart to apply")
					}
					e, err := engine.New(a.Store, next, log)
					if err != nil {
						log.Error("engine rebuild failed", zap.Error(err))
						return
					}
					e.Auditor = a.Events
					h, err := build(e)
					if err != nil {
						log.Error("handler rebuild failed", zap.Error(err))
						return
					}
					swap.set(h)
				})
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				log.Info("serving phase-gate API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("driver", cfg.Store.Driver))
				fmt.Printf("Serving phase-gate API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return context.Canceled
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, workspace, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printTrace(tr domain.TransitionTrace) {
	status := "PASS"
	if !tr.Pass {
		status = "BLOCKED"
	}
	fmt.Printf("%s %s: %s\n", tr.WorkPackageID, tr.Edge(), status)
	if len(tr.Reasons) == 0 {
		return
	}
	tw := newTable("Reason", "Action")
	for i, reason := range tr.Reasons {
		action := ""
		if i < len(tr.Actions) {
			action = tr.Actions[i]
		}
		tw.AppendRow(table.Row{reason, action})
	}
	tw.Render()
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
