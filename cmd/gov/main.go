package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"govline/internal/blob"
	"govline/internal/config"
	"govline/internal/db"
	"govline/internal/domain"
	"govline/internal/engine"
	"govline/internal/migrate"
	"govline/internal/repo"
	"govline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gov",
	Short: "Govline CLI",
	Long: `Govline tracks recurring governance routines and their compliance cycles.
Routines describe what must happen and how often; the generator turns them
into dated cycles; cycles move through a guarded lifecycle with sequential
approvals; every transition is audited. Dashboards classify open cycles as
late, due soon, in review, or on track.`,
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
	viper.SetEnvPrefix("GOVLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(routineCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage governance.yml"}
	var orgID string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default governance.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644)
		},
	}
	initCmd.Flags().StringVar(&orgID, "org", "default-org", "organization id")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	cfg.AddCommand(initCmd)
	cfg.AddCommand(showCmd)
	return cfg
}

func areaCmd() *cobra.Command {
	area := &cobra.Command{Use: "area", Short: "Manage governance areas"}
	var name, desc string
	var sortOrder int
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create governance area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateArea(ctx, name, desc, sortOrder, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "area name")
	createCmd.Flags().StringVar(&desc, "description", "", "description")
	createCmd.Flags().IntVar(&sortOrder, "sort-order", 0, "display order")
	_ = createCmd.MarkFlagRequired("name")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List governance areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAreas(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	area.AddCommand(createCmd)
	area.AddCommand(listCmd)
	return area
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Manage business units"}
	var code, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create business unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUnit(ctx, code, name, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	createCmd.Flags().StringVar(&code, "code", "", "unit code")
	createCmd.Flags().StringVar(&name, "name", "", "unit name")
	_ = createCmd.MarkFlagRequired("code")
	_ = createCmd.MarkFlagRequired("name")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List business units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListUnits(ctx)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	unit.AddCommand(createCmd)
	unit.AddCommand(listCmd)
	return unit
}

func routineCmd() *cobra.Command {
	routine := &cobra.Command{Use: "routine", Short: "Manage routines"}
	routine.AddCommand(routineCreateCmd())
	routine.AddCommand(routineListCmd())
	routine.AddCommand(routineShowCmd())
	routine.AddCommand(routineActiveCmd("activate", true))
	routine.AddCommand(routineActiveCmd("deactivate", false))
	return routine
}

func routineCreateCmd() *cobra.Command {
	var areaID, title, desc, frequency, priority string
	var dayOfMonth, riskScore int
	var owners, scope, approvers []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create routine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.RoutineOptions{
					AreaID:      areaID,
					Title:       title,
					Description: desc,
					Frequency:   frequency,
					Priority:    priority,
					OwnerIDs:    owners,
					ScopeIDs:    scope,
					ApproverIDs: approvers,
					ActorID:     viper.GetString("user-id"),
				}
				if cmd.Flags().Changed("day-of-month") {
					opts.DayOfMonth = &dayOfMonth
				}
				if cmd.Flags().Changed("risk-score") {
					opts.RiskScore = &riskScore
				}
				rt, err := e.CreateRoutine(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(rt)
			})
		},
	}
	cmd.Flags().StringVar(&areaID, "area", "", "governance area id")
	cmd.Flags().StringVar(&title, "title", "", "routine title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&frequency, "frequency", "", "weekly|monthly|quarterly|yearly|event")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high|critical")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "monthly due day, clamped to month length")
	cmd.Flags().IntVar(&riskScore, "risk-score", 0, "0-100")
	cmd.Flags().StringSliceVar(&owners, "owner", nil, "owner user id (repeatable)")
	cmd.Flags().StringSliceVar(&scope, "unit", nil, "business unit id (repeatable)")
	cmd.Flags().StringSliceVar(&approvers, "approver", nil, "approver user id, in chain order (repeatable)")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("frequency")
	return cmd
}

func routineListCmd() *cobra.Command {
	var areaID, frequency string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRoutines(ctx, repo.RoutineFilters{AreaID: areaID, Frequency: frequency, ActiveOnly: activeOnly})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderRoutineTable(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&areaID, "area", "", "filter by area")
	cmd.Flags().StringVar(&frequency, "frequency", "", "filter by frequency")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "active routines only")
	return cmd
}

func routineShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <routine-id>",
		Short: "Show routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rt, err := e.Repo.GetRoutine(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rt)
			})
		},
	}
	return cmd
}

func routineActiveCmd(use string, active bool) *cobra.Command {
	short := "Activate routine"
	if !active {
		short = "Deactivate routine"
	}
	return &cobra.Command{
		Use:   use + " <routine-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SetRoutineActive(ctx, args[0], active, viper.GetString("user-id"))
			})
		},
	}
}

func cycleCmd() *cobra.Command {
	cycle := &cobra.Command{Use: "cycle", Short: "Manage compliance cycles"}
	cycle.AddCommand(cycleEnsureCmd())
	cycle.AddCommand(cycleListCmd())
	cycle.AddCommand(cycleShowCmd())
	cycle.AddCommand(cycleStatusCmd())
	cycle.AddCommand(cycleCommentCmd())
	cycle.AddCommand(cycleEvidenceCmd())
	return cycle
}

func cycleEnsureCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Generate missing cycles for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if from == "" || to == "" {
					now := time.Now().UTC()
					from = now.Format("2006-01-02")
					to = now.AddDate(0, 0, e.Config.GenerationWindowDays()).Format("2006-01-02")
				}
				report, err := e.EnsureCycles(ctx, from, to, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	return cmd
}

func cycleListCmd() *cobra.Command {
	var from, to, status, areaID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cycles in a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.CycleViews(ctx, repo.CycleFilters{From: from, To: to, Status: status, AreaID: areaID})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				renderCycleTable(views)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&areaID, "area", "", "filter by area")
	return cmd
}

func cycleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show cycle with approvals and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCycle(ctx, args[0])
				if err != nil {
					return err
				}
				steps, err := e.Repo.ListApprovalSteps(ctx, c.ID)
				if err != nil {
					return err
				}
				history, err := e.Repo.ListHistory(ctx, c.ID)
				if err != nil {
					return err
				}
				view := e.ClassifyForNow(c)
				return printJSON(map[string]any{
					"cycle":     c,
					"bucket":    view.Bucket,
					"approvals": steps,
					"history":   history,
				})
			})
		},
	}
	return cmd
}

func cycleStatusCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <cycle-id> <status>",
		Short: "Transition cycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.SetStatusOptions{
					CycleID: args[0],
					Status:  args[1],
					ActorID: viper.GetString("user-id"),
				}
				if cmd.Flags().Changed("notes") {
					opts.Notes = &notes
				}
				c, err := e.SetCycleStatus(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "cycle notes")
	return cmd
}

func cycleCommentCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "comment <cycle-id>",
		Short: "Comment on a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, args[0], viper.GetString("user-id"), message)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func cycleEvidenceCmd() *cobra.Command {
	var evType, title, url, note, file string
	cmd := &cobra.Command{
		Use:   "evidence <cycle-id>",
		Short: "Attach evidence to a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev := domain.Evidence{
					ID:        uuid.NewString(),
					CycleID:   args[0],
					Type:      evType,
					Title:     title,
					URL:       url,
					Note:      note,
					CreatedBy: viper.GetString("user-id"),
				}
				if file != "" {
					f, err := os.Open(file)
					if err != nil {
						return err
					}
					defer f.Close()
					store := blob.New(viper.GetString("workspace"))
					key, err := store.Put(ev.ID, f)
					if err != nil {
						return err
					}
					ev.Type = "file"
					ev.URL = "blob://" + key
					if ev.Title == "" {
						ev.Title = filepath.Base(file)
					}
				}
				ev, err := e.AddEvidence(ctx, ev)
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
	cmd.Flags().StringVar(&evType, "type", "note", "file|link|note")
	cmd.Flags().StringVar(&title, "title", "", "evidence title")
	cmd.Flags().StringVar(&url, "url", "", "evidence url")
	cmd.Flags().StringVar(&note, "note", "", "evidence note")
	cmd.Flags().StringVar(&file, "file", "", "file to store as evidence")
	return cmd
}

func approveCmd() *cobra.Command {
	var order int
	var decision, comment string
	cmd := &cobra.Command{
		Use:   "approve <cycle-id>",
		Short: "Record an approval decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RecordDecision(ctx, engine.DecisionOptions{
					CycleID:  args[0],
					Order:    order,
					Decision: decision,
					Comment:  comment,
					ActorID:  viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().IntVar(&order, "order", 1, "approval step order")
	cmd.Flags().StringVar(&decision, "decision", "approved", "approved|rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "decision comment")
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Dashboards and exports"}
	report.AddCommand(reportDashboardCmd())
	report.AddCommand(reportPriorityCmd())
	report.AddCommand(reportExportCmd())
	return report
}

func reportWindow(from, to string) (string, string) {
	if from != "" && to != "" {
		return from, to
	}
	now := time.Now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}

func reportDashboardCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Compliance counters for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, t := reportWindow(from, to)
				stats, err := e.Dashboard(ctx, f, t)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				w := table.NewWriter()
				w.SetOutputMirror(os.Stdout)
				w.AppendHeader(table.Row{"Total", "Late", "Due soon", "In review", "Done", "On track"})
				w.AppendRow(table.Row{stats.Total, stats.Late, stats.DueSoon, stats.InReview, stats.Done, stats.OnTrack})
				w.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	return cmd
}

func reportPriorityCmd() *cobra.Command {
	var from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "priority",
		Short: "Cycles needing attention, highest risk first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, t := reportWindow(from, to)
				views, err := e.PriorityQueue(ctx, f, t, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				renderCycleTable(views)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 10, "max cycles")
	return cmd
}

func reportExportCmd() *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export cycles as XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, t := reportWindow(from, to)
				data, err := e.ExportCyclesXLSX(ctx, repo.CycleFilters{From: f, To: t})
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&out, "out", "cycles.xlsx", "output file")
	return cmd
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Manage user profiles"}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProfiles(ctx, false)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	var role string
	var active bool
	setRoleCmd := &cobra.Command{
		Use:   "set-role <user-id>",
		Short: "Set profile role and activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var activePtr *bool
				if cmd.Flags().Changed("active") {
					activePtr = &active
				}
				p, err := e.SetProfileRole(ctx, args[0], role, activePtr, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	setRoleCmd.Flags().StringVar(&role, "role", "", "admin|director|owner|viewer")
	setRoleCmd.Flags().BoolVar(&active, "active", true, "activate the profile")
	_ = setRoleCmd.MarkFlagRequired("role")
	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show (and bootstrap) the acting profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.EnsureProfile(ctx, viper.GetString("user-id"), "")
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	profile.AddCommand(listCmd)
	profile.AddCommand(setRoleCmd)
	profile.AddCommand(whoamiCmd)
	return profile
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actorID, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key, printing the secret once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("user-id")
				}
				secret := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "secret": secret})
			})
		},
	}
	createCmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	createCmd.Flags().StringVar(&name, "name", "", "key label")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	apikey.AddCommand(createCmd)
	apikey.AddCommand(listCmd)
	apikey.AddCommand(revokeCmd)
	return apikey
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit event log"}
	var n int
	var entityKind, entityID string
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, entityKind, entityID, n)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	tailCmd.Flags().IntVar(&n, "n", 20, "number of events")
	tailCmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tailCmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tailCmd)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
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
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("GOVLINE_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("GOVLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}

			// Nightly generation keeps the cycle horizon filled without
			// waiting for an explicit ensure call.
			scheduler := cron.New(cron.WithSeconds())
			if spec := cfg.Scheduling.GenerateCron; spec != "" {
				_, err := scheduler.AddFunc(spec, func() {
					ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
					defer cancel()
					now := time.Now().UTC()
					from := now.Format("2006-01-02")
					to := now.AddDate(0, 0, cfg.GenerationWindowDays()).Format("2006-01-02")
					report, err := e.EnsureCycles(ctx, from, to, "scheduler")
					if err != nil {
						fmt.Printf("scheduled generation failed: %v\n", err)
						return
					}
					if report.Created > 0 {
						fmt.Printf("scheduled generation created %d cycle(s)\n", report.Created)
					}
				})
				if err != nil {
					return fmt.Errorf("invalid generate_cron %q: %w", spec, err)
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Govline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept X-User-Id without auth (dev only)")
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
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderCycleTable(views []engine.CycleView) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"Cycle", "Routine", "Due", "Status", "Bucket", "Days", "Risk"})
	for _, v := range views {
		risk := "-"
		if v.Routine.RiskScore != nil {
			risk = fmt.Sprintf("%d", *v.Routine.RiskScore)
		}
		w.AppendRow(table.Row{shortID(v.Cycle.ID), v.Routine.Title, v.Cycle.DueDate, v.Cycle.Status, v.Bucket, v.DaysRemaining, risk})
	}
	w.Render()
}

func renderRoutineTable(items []domain.Routine) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"ID", "Title", "Frequency", "Priority", "Active", "Approvers"})
	for _, rt := range items {
		w.AppendRow(table.Row{shortID(rt.ID), rt.Title, rt.Frequency, rt.Priority, rt.IsActive, len(rt.ApproverIDs)})
	}
	w.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
