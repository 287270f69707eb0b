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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"inproc/internal/app"
	"inproc/internal/config"
	"inproc/internal/db"
	"inproc/internal/domain"
	"inproc/internal/engine"
	"inproc/internal/repo"
	"inproc/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "inproc",
	Short: "Employee in-processing checklist tracker",
	Long: `Inproc tracks employee in-processing requests and their onboarding checklists.
Each request instantiates tasks from a fixed template catalog; tasks unlock as
their prerequisites are completed and the responsible lead is notified.`,
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
	viper.SetEnvPrefix("INPROC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default inproc.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage in-processing requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestUpdateCmd())
	req.AddCommand(requestCloseCmd())
	req.AddCommand(requestCancelCmd())
	req.AddCommand(requestDeleteCmd())
	req.AddCommand(requestChecklistCmd())
	return req
}

func addAttrFlags(cmd *cobra.Command, attrs *engine.RequestAttrs) {
	var empType string
	cmd.Flags().StringVar(&attrs.EmpName, "name", "", "employee name")
	cmd.Flags().StringVar(&empType, "emp-type", "", "employment type (Civilian, Contractor, Military)")
	cmd.Flags().StringVar(&attrs.GradeRank, "grade-rank", "", "grade/rank")
	cmd.Flags().IntVar(&attrs.MPCN, "mpcn", 0, "MPCN")
	cmd.Flags().IntVar(&attrs.SAR, "sar", 0, "SAR code")
	cmd.Flags().IntVar(&attrs.SensitivityCode, "sensitivity-code", 0, "position sensitivity code")
	cmd.Flags().StringVar(&attrs.WorkLocation, "work-location", "", "work location")
	cmd.Flags().StringVar(&attrs.Office, "office", "", "office symbol")
	cmd.Flags().StringVar(&attrs.IsNewCivMil, "new-civ-mil", "no", "brand new civilian/military (yes/no)")
	cmd.Flags().StringVar(&attrs.PrevOrg, "prev-org", "", "previous organization")
	cmd.Flags().StringVar(&attrs.IsNewToBaseAndCenter, "new-to-base", "no", "new to base and center (yes/no)")
	cmd.Flags().StringVar(&attrs.HasExistingCAC, "has-cac", "no", "has existing CAC (yes/no)")
	cmd.Flags().StringVar(&attrs.ETA, "eta", "", "estimated arrival (RFC3339)")
	cmd.Flags().StringVar(&attrs.CompletionDate, "completion-date", "", "target completion (RFC3339)")
	cmd.Flags().StringVar(&attrs.SupervisorName, "supervisor-name", "", "supervisor name")
	cmd.Flags().StringVar(&attrs.SupervisorEmail, "supervisor-email", "", "supervisor email")
	cmd.Flags().StringVar(&attrs.EmployeeName, "employee-name", "", "employee GAL name")
	cmd.Flags().StringVar(&attrs.EmployeeEmail, "employee-email", "", "employee email")
	cmd.Flags().StringVar(&attrs.IsTraveler, "traveler", "no", "requires travel (yes/no)")
	cmd.Flags().StringVar(&attrs.IsSupervisor, "supervisor", "no", "supervisory position (yes/no)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		attrs.EmpType = domain.EmpType(empType)
	}
}

func requestCreateCmd() *cobra.Command {
	var attrs engine.RequestAttrs
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request and instantiate its checklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateRequest(ctx, attrs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if res.NotifyErr != nil {
					fmt.Fprintln(os.Stderr, "warning: submit notification failed:", res.NotifyErr)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("request %d created with %d checklist items\n", res.Request.ID, len(res.Checklist))
				renderChecklist(res.Checklist)
				return nil
			})
		},
	}
	addAttrFlags(cmd, &attrs)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("emp-type")
	_ = cmd.MarkFlagRequired("supervisor-email")
	_ = cmd.MarkFlagRequired("eta")
	return cmd
}

func requestUpdateCmd() *cobra.Command {
	var attrs engine.RequestAttrs
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rewrite the intake fields of an open request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.UpdateRequest(ctx, id, attrs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(req)
			})
		},
	}
	addAttrFlags(cmd, &attrs)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("emp-type")
	_ = cmd.MarkFlagRequired("supervisor-email")
	_ = cmd.MarkFlagRequired("eta")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "ETA", "Office"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.EmpName, r.EmpType, r.Status(), r.ETA, r.Office})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&f.SupervisorID, "supervisor-id", 0, "filter by supervisor user id")
	cmd.Flags().Int64Var(&f.EmployeeID, "employee-id", 0, "filter by employee user id")
	cmd.Flags().Int64Var(&f.UserID, "user-id", 0, "requests where the user is supervisor or employee")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only open requests")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.GetRequest(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrIndent(req)
			})
		},
	}
}

func requestCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Close a request (all items must be complete)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.CloseRequest(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(req)
			})
		},
	}
}

func requestCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.CancelRequest(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(req)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func requestDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a request entered by mistake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteRequest(ctx, id, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("request %d deleted\n", id)
				return nil
			})
		},
	}
}

func requestChecklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checklist <id>",
		Short: "Show the checklist for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Checklist(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderChecklist(items)
				return nil
			})
		},
	}
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{Use: "checklist", Short: "Work checklist items"}
	cl.AddCommand(checklistCompleteCmd())
	cl.AddCommand(checklistReactivateCmd())
	cl.AddCommand(checklistMineCmd())
	return cl
}

func checklistCompleteCmd() *cobra.Command {
	var byEmail string
	cmd := &cobra.Command{
		Use:   "complete <item-id>",
		Short: "Complete a checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				user, err := a.Repo.GetUserByEmail(ctx, byEmail)
				if err != nil {
					return fmt.Errorf("resolve --by %s: %w", byEmail, err)
				}
				res, err := a.Engine.CompleteItem(ctx, id, user.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if res.NotifyErr != nil {
					fmt.Fprintln(os.Stderr, "warning: activation notification failed:", res.NotifyErr)
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.AlreadyCompleted {
					fmt.Printf("item %d was already completed\n", res.Item.ID)
					return nil
				}
				fmt.Printf("item %d completed\n", res.Item.ID)
				for lead, items := range res.Activated {
					for _, it := range items {
						fmt.Printf("activated: %s (%s)\n", it.Title, lead)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&byEmail, "by", "", "email of the user completing the item")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func checklistReactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <item-id>",
		Short: "Reopen a completed checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				item, err := a.Engine.ReactivateItem(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(item)
			})
		},
	}
}

func checklistMineCmd() *cobra.Command {
	var email string
	var incompleteOnly bool
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List active items awaiting a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.MyItems(ctx, email, incompleteOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderChecklist(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().BoolVar(&incompleteOnly, "incomplete-only", false, "hide completed items")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage role group membership"}
	role.AddCommand(roleAddCmd())
	role.AddCommand(roleListCmd())
	role.AddCommand(roleRemoveCmd())
	return role
}

func roleAddCmd() *cobra.Command {
	var name, email, roleName string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user to a role group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				role, err := a.Engine.AddRole(ctx, name, email, domain.RoleType(roleName), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(role)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user display name")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&roleName, "role", "", "role (Admin, IT, ATAAPS, FOG, DTS, GTC, Security, Employee, Supervisor)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func roleListCmd() *cobra.Command {
	var roleName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List role assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				roles, err := a.Engine.ListRoles(ctx, repo.RoleFilters{Role: domain.RoleType(roleName)})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Name", "Email"})
				for _, r := range roles {
					tw.AppendRow(table.Row{r.ID, r.Role, r.User.Name, r.User.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&roleName, "role", "", "role filter")
	return cmd
}

func roleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a role assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RemoveRole(ctx, id)
			})
		},
	}
}

func outboxCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Show the notification email outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				emails, err := a.Repo.ListEmails(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(emails)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "To", "CC", "Subject", "Sent"})
				for _, e := range emails {
					tw.AppendRow(table.Row{e.ID, e.To, e.CC, e.Subject, e.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of emails")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var requestID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, requestID, n)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&requestID, "request", 0, "request id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Inproc API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Bootstrap(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func renderChecklist(items []domain.ChecklistItem) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Req", "Lead", "Title", "Active", "Completed"})
	for _, it := range items {
		completed := ""
		if it.CompletedDate != nil {
			completed = *it.CompletedDate
		}
		tw.AppendRow(table.Row{it.ID, it.RequestID, it.Lead, it.Title, it.Active, completed})
	}
	tw.Render()
}

func printJSONOrIndent(v any) error {
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

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
