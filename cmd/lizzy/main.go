package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lizzy/internal/app"
	"lizzy/internal/config"
	"lizzy/internal/db"
	"lizzy/internal/domain"
	"lizzy/internal/engine"
	"lizzy/internal/intake"
	"lizzy/internal/llm"
	"lizzy/internal/repo"
	"lizzy/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lizzy",
	Short: "Lizzy writing pipeline",
	Long: `Lizzy turns a story outline into drafted scenes.
- Workspace: a directory holding lizzy.yml, an optional .env and projects/<name>/<name>.sqlite.
- Intake: metadata, characters and the scene outline, imported from YAML.
- Brainstorm: per-scene notes from the books, scripts and plays buckets, stored in versioned tables.
- Write: one prompt per outlined scene, sent to the configured model; every run gets its own write_runs_vN table.
- Drafts and finals: each scene keeps every draft version and its latest finalized text.
- Export: the finalized scenes compiled into a manuscript, an index and a screenplay view.
- Event log: every import and run leaves a trail, view it with 'lizzy log tail'.`,
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
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LIZZY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("project", "", "project name (defaults to the only project in the workspace)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides lizzy.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(intakeCmd())
	rootCmd.AddCommand(brainstormCmd())
	rootCmd.AddCommand(writeCmd())
	rootCmd.AddCommand(draftsCmd())
	rootCmd.AddCommand(finalsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a project database and seed its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				Project:   args[0],
				LogLevel:  viper.GetString("log-level"),
				Create:    true,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			res, err := importer(s).InitProject(cmd.Context(), s.Project, template)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"project": s.Project, "path": db.Path(s.Workspace, s.Project), "result": res})
			}
			fmt.Printf("Project %s ready at %s (%d metadata keys, %d template scenes)\n",
				s.Project, db.Path(s.Workspace, s.Project), res.Metadata, res.Scenes)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "outline template ("+strings.Join(intake.TemplateNames(), ", ")+")")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			names, err := db.ListProjects(workspace)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(names)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Project", "Database"})
			for _, n := range names {
				tw.AppendRow(table.Row{n, db.Path(workspace, n)})
			}
			tw.Render()
			return nil
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show project metadata and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				meta, err := s.Repo.Metadata(ctx)
				if err != nil {
					return err
				}
				counts, err := s.Repo.Counts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": s.Project, "metadata": meta, "counts": counts})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Key", "Value"})
				for _, k := range sortedKeys(meta) {
					tw.AppendRow(table.Row{k, meta[k]})
				}
				tw.AppendSeparator()
				tw.AppendRow(table.Row{"characters", counts.Characters})
				tw.AppendRow(table.Row{"scenes", counts.Scenes})
				tw.AppendRow(table.Row{"drafts", counts.Drafts})
				tw.AppendRow(table.Row{"finalized", counts.Finalized})
				tw.Render()
				return nil
			})
		},
	}
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lizzy.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

// --- intake / brainstorm ---

func intakeCmd() *cobra.Command {
	in := &cobra.Command{Use: "intake", Short: "Import story metadata, characters and outline"}
	in.AddCommand(intakeImportCmd())
	return in
}

func intakeImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an intake YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file required")
			}
			story, err := intake.ReadStory(file)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				res, err := importer(s).ImportStory(ctx, story)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d metadata keys, %d characters, %d scenes\n", res.Metadata, res.Characters, res.Scenes)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "intake YAML file")
	return cmd
}

func brainstormCmd() *cobra.Command {
	bs := &cobra.Command{Use: "brainstorm", Short: "Brainstorm tables and coverage"}
	bs.AddCommand(brainstormImportCmd())
	bs.AddCommand(brainstormCoverageCmd())
	return bs
}

func brainstormImportCmd() *cobra.Command {
	var file, prefix string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import brainstorm entries into a new versioned table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file required")
			}
			b, err := intake.ReadBrainstorm(file)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if prefix == "" {
					prefix = s.Config.Writer.BrainstormPrefix
				}
				res, err := importer(s).ImportBrainstorm(ctx, prefix, b)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d entries into %s\n", res.Entries, res.Table)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "brainstorm YAML file")
	cmd.Flags().StringVar(&prefix, "prefix", "", "table prefix (defaults to writer.brainstorm_prefix)")
	return cmd
}

func brainstormCoverageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage",
		Short: "Show brainstorm buckets per outlined scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				rep, err := s.Engine.Coverage(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable()
				tw.SetTitle(orDash(rep.Table))
				tw.AppendHeader(table.Row{"Scene", "Title", "Books", "Scripts", "Plays", "Covered"})
				for _, c := range rep.Scenes {
					tw.AppendRow(table.Row{
						domain.SceneKey{Act: c.Act, Scene: c.Scene}.String(), c.Title,
						c.Buckets["books"], c.Buckets["scripts"], c.Buckets["plays"], c.Covered(),
					})
				}
				tw.Render()
				if len(rep.Missing) > 0 {
					fmt.Printf("%d scene(s) without brainstorm entries\n", len(rep.Missing))
				}
				return nil
			})
		},
	}
}

// --- write ---

func writeCmd() *cobra.Command {
	w := &cobra.Command{Use: "write", Short: "Generate scene drafts"}
	w.AddCommand(writeRunCmd())
	w.AddCommand(writePromptCmd())
	return w
}

func writeRunCmd() *cobra.Command {
	var scenes []string
	var skipExport bool
	var exportDir string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Write every outlined scene (or the ones given with --scene)",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseSceneKeys(scenes)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if err := s.EnableGenerator(); err != nil {
					return err
				}
				asJSON := viper.GetBool("json")
				opts := engine.RunOptions{Scenes: keys, SkipExport: skipExport, ExportDir: exportDir}
				if !asJSON {
					opts.OnScene = func(r engine.SceneReport) {
						status := "ok"
						if !r.OK {
							status = "FAILED: " + r.Error
						}
						fmt.Printf("  %d:%d %-30s v%d %5d words  %s\n", r.Act, r.Scene, r.Title, r.DraftVersion, r.Words, status)
					}
				}
				sum, err := s.Engine.Run(ctx, opts)
				if err != nil {
					var cov *engine.CoverageError
					if errors.As(err, &cov) {
						return fmt.Errorf("%w (import brainstorm entries or set writer.require_brainstorm: false)", err)
					}
					return err
				}
				if asJSON {
					return printJSON(sum)
				}
				fmt.Println(runSummaryLine(sum))
				if sum.Export != nil && len(sum.Export.Files) > 0 {
					fmt.Printf("Exported %d scenes to %s\n", sum.Export.Scenes, sum.Export.Dir)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&scenes, "scene", nil, "scene to write as act:scene (repeatable)")
	cmd.Flags().BoolVar(&skipExport, "skip-export", false, "do not export after the run")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "export directory")
	return cmd
}

func writePromptCmd() *cobra.Command {
	var act, scene int
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the prompt a run would send for one scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			if act <= 0 || scene <= 0 {
				return errors.New("--act and --scene required")
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				prompt, err := s.Engine.PromptPreview(ctx, domain.SceneKey{Act: act, Scene: scene})
				if err != nil {
					return err
				}
				tokens := llm.CountTokens(s.Config.Generation.Model, prompt)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"act": act, "scene": scene, "prompt": prompt, "tokens": tokens})
				}
				fmt.Println(prompt)
				fmt.Fprintf(os.Stderr, "\n(%d tokens for %s)\n", tokens, s.Config.Generation.Model)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&act, "act", 0, "act number")
	cmd.Flags().IntVar(&scene, "scene", 0, "scene number")
	return cmd
}

// --- drafts / finals / runs ---

func draftsCmd() *cobra.Command {
	d := &cobra.Command{Use: "drafts", Short: "Scene drafts"}
	d.AddCommand(draftsListCmd())
	return d
}

func draftsListCmd() *cobra.Command {
	var f repo.DraftFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts in story order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				drafts, err := s.Repo.ListDrafts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(drafts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Scene", "Version", "Draft ID", "Words", "Created", "Status"})
				for _, d := range drafts {
					status := d.Status
					if engine.IsErrorMarker(d.Text) {
						status = "error"
					}
					tw.AppendRow(table.Row{domain.SceneKey{Act: d.Act, Scene: d.Scene}.String(), d.Version, d.DraftID, len(strings.Fields(d.Text)), d.CreatedAt, status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Act, "act", 0, "act filter")
	cmd.Flags().IntVar(&f.Scene, "scene", 0, "scene filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum drafts")
	return cmd
}

func finalsCmd() *cobra.Command {
	fc := &cobra.Command{Use: "finals", Short: "Finalized scenes"}
	fc.AddCommand(finalsShowCmd())
	return fc
}

func finalsShowCmd() *cobra.Command {
	var act, scene int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show finalized scenes (one with --act and --scene)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if act > 0 && scene > 0 {
					f, err := s.Repo.GetFinal(ctx, domain.SceneKey{Act: act, Scene: scene})
					if err != nil {
						if errors.Is(err, repo.ErrNotFound) {
							return fmt.Errorf("scene %d:%d has no finalized text", act, scene)
						}
						return err
					}
					if viper.GetBool("json") {
						return printJSON(f)
					}
					fmt.Println(f.Text)
					return nil
				}
				finals, err := s.Repo.ListFinals(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(finals)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Scene", "Words", "Notes", "Updated"})
				for _, f := range finals {
					tw.AppendRow(table.Row{f.Key().String(), len(strings.Fields(f.Text)), f.Notes, f.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&act, "act", 0, "act number")
	cmd.Flags().IntVar(&scene, "scene", 0, "scene number")
	return cmd
}

func runsCmd() *cobra.Command {
	rc := &cobra.Command{Use: "runs", Short: "Write run tables"}
	rc.AddCommand(runsListCmd())
	return rc
}

func runsListCmd() *cobra.Command {
	var tableName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List write run tables, or the records of one with --table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if tableName == "" {
					tables, err := s.Repo.VersionedTables(ctx, repo.WriteRunPrefix)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(tables)
					}
					tw := newTable()
					tw.AppendHeader(table.Row{"Table", "Version"})
					for _, t := range tables {
						tw.AppendRow(table.Row{t.Name, t.Version})
					}
					tw.Render()
					return nil
				}
				if tableName == "latest" {
					latest, err := s.Repo.LatestVersionName(ctx, repo.WriteRunPrefix)
					if err != nil {
						return err
					}
					if latest == "" {
						return errors.New("no write runs yet")
					}
					tableName = latest
				}
				recs, err := s.Repo.ListWriteRuns(ctx, tableName)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := newTable()
				tw.SetTitle(tableName)
				tw.AppendHeader(table.Row{"ID", "Scene", "Title", "Words", "Created"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.ID, domain.SceneKey{Act: r.Act, Scene: r.Scene}.String(), r.SceneTitle, len(strings.Fields(r.Output)), r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tableName, "table", "", "run table name, or latest")
	return cmd
}

// --- export ---

func exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Compile finalized scenes into manuscript files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				res, err := s.Engine.Export(ctx, dir)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if len(res.Files) == 0 {
					fmt.Println("Nothing to export: no finalized scenes")
					return nil
				}
				fmt.Printf("Exported %d scenes to %s\n", res.Scenes, res.Dir)
				for _, f := range res.Files {
					fmt.Println("  " + f)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "export directory")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	lc := &cobra.Command{Use: "log", Short: "Event log"}
	lc.AddCommand(logTailCmd())
	return lc
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				events, err := s.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += " " + e.EntityID
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if err := s.EnableGenerator(); err != nil {
					s.Log.Warn("generator unavailable; write endpoints will fail", zap.Error(err))
				}
				e := s.Engine
				if e.Notifier.Active() {
					// The background loop owns delivery while serving.
					go e.Notifier.Run(ctx, 0)
					e.Notifier = nil
				}
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("LIZZY_JWT_SECRET")}
				if !authCfg.Enabled() {
					s.Log.Warn("LIZZY_JWT_SECRET not set; API is unauthenticated")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Log: s.Log.Named("api")})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Lizzy API for %s on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", s.Project, addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- token ---

func tokenCmd() *cobra.Command {
	tc := &cobra.Command{Use: "token", Short: "API bearer tokens"}
	tc.AddCommand(tokenIssueCmd())
	return tc
}

func tokenIssueCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token with LIZZY_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.LoadEnv(viper.GetString("workspace")); err != nil {
				return err
			}
			secret := os.Getenv("LIZZY_JWT_SECRET")
			if secret == "" {
				return errors.New("LIZZY_JWT_SECRET is required to issue tokens")
			}
			now := time.Now()
			claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}
			if ttl > 0 {
				claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
			}
			tok, err := server.IssueToken(secret, subject, roles, claims)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject, recorded as the event actor")
	cmd.Flags().StringSliceVar(&roles, "role", []string{server.RoleWriter}, "role claim (repeatable); writer may run, export and edit, reader may only read")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

// --- helpers ---

func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	s, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Project:   viper.GetString("project"),
		LogLevel:  viper.GetString("log-level"),
	})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func importer(s *app.Session) intake.Importer {
	return intake.Importer{Repo: s.Repo, Events: s.Engine.Events, Project: s.Project}
}

func parseSceneKeys(items []string) ([]domain.SceneKey, error) {
	keys := make([]domain.SceneKey, 0, len(items))
	for _, it := range items {
		k, err := domain.ParseSceneKey(it)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// runSummaryLine reports scenes written against the whole outline.
func runSummaryLine(sum engine.Summary) string {
	line := fmt.Sprintf("Run %s: %d of %d outline scenes written", sum.RunTable, sum.Succeeded, sum.OutlineScenes)
	if sum.Attempted != sum.OutlineScenes {
		line += fmt.Sprintf(" (%d targeted)", sum.Attempted)
	}
	if sum.Failed > 0 {
		line += fmt.Sprintf(", %d failed", sum.Failed)
	}
	return line
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
