package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shiftledger/internal/app"
	"shiftledger/internal/config"
	"shiftledger/internal/db"
	"shiftledger/internal/domain"
	"shiftledger/internal/engine"
	"shiftledger/internal/migrate"
	"shiftledger/internal/repo"
	"shiftledger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Shiftledger CLI",
	Long: `Shiftledger tracks care task completion and shift journals for a facility.
- Workspace: the .shiftledger directory holding the database; the catalog and
  facility settings live in shiftledger.yml and are stored in the DB on import.
- Catalog: the fixed checklist of care tasks, bucketed by shift category
  (morning, afternoon, evening, prn). Night staff only see prn tasks.
- Completions: an append-only ledger of who did (or deliberately skipped)
  which task for which resident. Removing a completion never rewrites history.
- Journal: free-text shift notes with #tags, optionally flagged for handover
  to the next shift.
- Progress: per-resident completion percentages for the current shift,
  with a separate required-only figure.
- Event log: diary of changes, view with 'sl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SHIFTLEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("staff-id", "local-staff", "acting staff identifier")
	rootCmd.PersistentFlags().StringP("resident", "r", "", "resident identifier")
	rootCmd.PersistentFlags().String("facility", "", "facility id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("staff-id", rootCmd.PersistentFlags().Lookup("staff-id"))
	_ = viper.BindPFlag("resident", rootCmd.PersistentFlags().Lookup("resident"))
	_ = viper.BindPFlag("facility", rootCmd.PersistentFlags().Lookup("facility"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(skipCmd())
	rootCmd.AddCommand(uncompleteCmd())
	rootCmd.AddCommand(completionsCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(serveCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Inspect the task catalog",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var shiftName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var tasks []domain.Task
				if shiftName != "" {
					relevant, err := e.RelevantTasks(shiftName)
					if err != nil {
						return err
					}
					tasks = relevant
				} else {
					tasks = e.Catalog.AllTasks()
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Label", "Category", "Required", "Depends On"})
				for _, t := range tasks {
					req := ""
					if t.Required {
						req = "yes"
					}
					tw.AppendRow(table.Row{t.ID, t.Label, t.Category, req, strings.Join(t.Dependencies, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shiftName, "shift", "", "only tasks relevant to this shift")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a catalog task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, ok := e.Catalog.TaskByID(args[0])
				if !ok {
					return fmt.Errorf("task %s not found in catalog", args[0])
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func completeCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Record a task completion for a resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RecordCompletion(ctx, engine.CompletionOptions{
					TaskID:     args[0],
					ResidentID: viper.GetString("resident"),
					StaffID:    viper.GetString("staff-id"),
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-text note")
	return cmd
}

func skipCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "skip <task-id>",
		Short: "Record a deliberate skip for a resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RecordCompletion(ctx, engine.CompletionOptions{
					TaskID:     args[0],
					ResidentID: viper.GetString("resident"),
					StaffID:    viper.GetString("staff-id"),
					Skipped:    true,
					SkipReason: reason,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task was skipped")
	return cmd
}

func uncompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uncomplete <completion-id>",
		Short: "Remove a completion (no-op when already gone)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveCompletion(ctx, args[0], viper.GetString("staff-id"))
			})
		},
	}
	return cmd
}

func completionsCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "completions",
		Short: "List a resident's completions for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			resident := viper.GetString("resident")
			if resident == "" {
				return fmt.Errorf("--resident required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.CompletionsFor(ctx, resident, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Staff", "At", "Skipped", "Notes"})
				for _, c := range items {
					skipped := ""
					if c.Skipped {
						skipped = c.SkipReason
						if skipped == "" {
							skipped = "yes"
						}
					}
					tw.AppendRow(table.Row{c.ID, c.TaskID, c.StaffID, c.CompletedAt, skipped, c.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "calendar day YYYY-MM-DD (default today)")
	return cmd
}

func progressCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show current-shift progress for a resident",
		RunE: func(cmd *cobra.Command, args []string) error {
			resident := viper.GetString("resident")
			if resident == "" {
				return fmt.Errorf("--resident required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Progress(ctx, resident, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Resident %s, %s shift on %s\n", p.ResidentID, p.Shift, p.Day)
				fmt.Printf("  all tasks:      %d/%d (%d%%)\n", p.Completed, p.Total, p.Percentage)
				fmt.Printf("  required tasks: %d/%d (%d%%)\n", p.RequiredCompleted, p.RequiredTotal, p.RequiredPercentage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "calendar day YYYY-MM-DD (default today)")
	return cmd
}

func journalCmd() *cobra.Command {
	journal := &cobra.Command{
		Use:   "journal",
		Short: "Shift journal entries",
	}
	journal.AddCommand(journalAddCmd())
	journal.AddCommand(journalListCmd())
	journal.AddCommand(journalUpdateCmd())
	journal.AddCommand(journalDeleteCmd())
	journal.AddCommand(journalHandoverCmd())
	journal.AddCommand(journalAttachAudioCmd())
	return journal
}

func journalAddCmd() *cobra.Command {
	var content, priority, audioURL string
	var handover bool
	var tags []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a journal entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.EntryOptions{
					StaffID:    viper.GetString("staff-id"),
					ResidentID: optionalString(viper.GetString("resident")),
					Content:    content,
					IsHandover: handover,
					Priority:   domain.Priority(priority),
					AudioURL:   optionalString(audioURL),
				}
				if cmd.Flags().Changed("tag") {
					opts.Tags = tags
				}
				entry, err := e.CreateEntry(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "entry text; #tags are extracted automatically")
	cmd.Flags().BoolVar(&handover, "handover", false, "flag for the next shift's staff")
	cmd.Flags().StringVar(&priority, "priority", "", "low, normal, high, or urgent")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "explicit tag (repeatable, disables extraction)")
	cmd.Flags().StringVar(&audioURL, "audio-url", "", "voice note reference")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func journalListCmd() *cobra.Command {
	var shiftName, day string
	var handoverOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Entries(ctx, engine.EntryFilters{
					ResidentID:   viper.GetString("resident"),
					Shift:        shiftName,
					Day:          day,
					HandoverOnly: handoverOnly,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Shift", "Resident", "Priority", "Handover", "Tags", "Content"})
				for _, entry := range items {
					resident := ""
					if entry.ResidentID != nil {
						resident = *entry.ResidentID
					}
					handover := ""
					if entry.IsHandover {
						handover = "yes"
					}
					tw.AppendRow(table.Row{entry.ID, entry.Shift, resident, entry.Priority, handover, strings.Join(entry.Tags, ","), entry.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shiftName, "shift", "", "shift filter")
	cmd.Flags().StringVar(&day, "day", "", "calendar day YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&handoverOnly, "handover", false, "only handover entries")
	return cmd
}

func journalUpdateCmd() *cobra.Command {
	var content, priority string
	var handover bool
	var tags []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.EntryUpdateOptions{
					ID:      args[0],
					StaffID: viper.GetString("staff-id"),
				}
				if cmd.Flags().Changed("content") {
					opts.Content = &content
				}
				if cmd.Flags().Changed("priority") {
					p := domain.Priority(priority)
					opts.Priority = &p
				}
				if cmd.Flags().Changed("handover") {
					opts.IsHandover = &handover
				}
				if cmd.Flags().Changed("tag") {
					opts.Tags = tags
				}
				entry, err := e.UpdateEntry(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "replacement text (re-extracts #tags)")
	cmd.Flags().StringVar(&priority, "priority", "", "low, normal, high, or urgent")
	cmd.Flags().BoolVar(&handover, "handover", false, "handover flag")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "explicit tag (repeatable)")
	return cmd
}

func journalDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a journal entry (no-op when already gone)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteEntry(ctx, args[0], viper.GetString("staff-id"))
			})
		},
	}
	return cmd
}

func journalHandoverCmd() *cobra.Command {
	var shiftName, day string
	cmd := &cobra.Command{
		Use:   "handover",
		Short: "Show handover entries for a shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if shiftName == "" {
					shiftName = string(e.CurrentShift())
				}
				items, err := e.HandoverEntries(ctx, shiftName, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				fmt.Printf("Handover notes, %s shift:\n", shiftName)
				for _, entry := range items {
					resident := "general"
					if entry.ResidentID != nil {
						resident = *entry.ResidentID
					}
					fmt.Printf("  [%s] (%s) %s\n", entry.Priority, resident, entry.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shiftName, "shift", "", "shift (default current)")
	cmd.Flags().StringVar(&day, "day", "", "calendar day YYYY-MM-DD (default today)")
	return cmd
}

func journalAttachAudioCmd() *cobra.Command {
	var audioURL string
	cmd := &cobra.Command{
		Use:   "attach-audio <id>",
		Short: "Attach a voice note reference to an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.AttachVoiceNote(ctx, args[0], viper.GetString("staff-id"), audioURL)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&audioURL, "url", "", "audio reference (opaque URL)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage facility config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show facility config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import facility config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			facilityID := cfg.Facility.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if facilityID == "" {
					facilityID = e.Config.Facility.ID
				}
				if err := e.Repo.UpsertFacilityConfig(ctx, facilityID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var facilityID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default shiftledger.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(facilityID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&facilityID, "facility", "default-facility", "facility id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Facility.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}
	keys.AddCommand(keysMintCmd())
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysRevokeCmd())
	return keys
}

func keysMintCmd() *cobra.Command {
	var name, staffID string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an API key (secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if staffID == "" {
				staffID = viper.GetString("staff-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.NewString() + uuid.NewString()
				now := time.Now().UTC().Format(time.RFC3339)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					StaffID:   staffID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: now,
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.EnsureStaff(ctx, tx, staffID, now); err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       key.ID,
					"staff_id": key.StaffID,
					"name":     key.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label, e.g. the device name")
	cmd.Flags().StringVar(&staffID, "staff", "", "staff id the key authenticates as (default --staff-id)")
	return cmd
}

func keysListCmd() *cobra.Command {
	var staffID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, staffID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Staff", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.StaffID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&staffID, "staff", "", "filter by staff id")
	return cmd
}

func keysRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowStaffHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveFacilityAndConfig(cmd.Context(), workspace, viper.GetString("facility"), viper.GetString("staff-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("SHIFTLEDGER_JWT_SECRET"),
				AllowLegacyStaffHeader: allowStaffHeader,
			}
			if authCfg.JWTSecret == "" && !allowStaffHeader {
				return fmt.Errorf("SHIFTLEDGER_JWT_SECRET is required for bearer auth (or pass --allow-staff-header for trusted networks)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Shiftledger API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowStaffHeader, "allow-staff-header", false, "accept the X-Staff-Id header without auth")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveFacilityAndConfig(ctx, workspace, viper.GetString("facility"), viper.GetString("staff-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
