package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/retention"
	"github.com/wwwzy/SalesAgent/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、会话、线索、审计记录以及立即清理过期数据的命令。`,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	RunE:  runInfo,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "列出保存的会话",
	RunE:  runSessions,
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "列出收集到的线索",
	RunE:  runLeads,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "查看模型调用审计记录",
	RunE:  runAudit,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "按 retention 配置立即清理一次",
	Long:  `忽略定时任务间隔，立即执行一次保留策略清理。读取配置文件中的 retention 策略。`,
	RunE:  runPrune,
}

var (
	listLimit   int
	listUser    string
	deleteID    string
	leadEmail   string
	auditTrace  string
	auditStatus string
)

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd, sessionsCmd, leadsCmd, auditCmd, pruneCmd)

	storageCmd.PersistentFlags().IntVar(&listLimit, "limit", 20, "最多显示条数")
	sessionsCmd.Flags().StringVar(&listUser, "user", "", "只显示该用户的会话")
	sessionsCmd.Flags().StringVar(&deleteID, "delete", "", "删除指定 session id 的会话")
	leadsCmd.Flags().StringVar(&leadEmail, "email", "", "按邮箱过滤")
	auditCmd.Flags().StringVar(&auditTrace, "trace", "", "按 trace id 过滤")
	auditCmd.Flags().StringVar(&auditStatus, "status", "", "按状态过滤 (running/success/failed)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", float64(info.Size())/1024/1024, dbPath)
	}

	store, err := openStorage(ctx)
	if err != nil {
		fmt.Fprintf(out, "Database File: %s\n", dbSizeStr)
		return err
	}
	defer store.Close()

	sessions, err := store.CountSessionSnapshots(ctx)
	if err != nil {
		return err
	}
	leads, err := store.CountLeads(ctx)
	if err != nil {
		return err
	}
	audit, err := store.CountAuditRecords(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database File: %s\n\n", dbSizeStr)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "SessionSnapshots\t%d\n", sessions)
	fmt.Fprintf(w, "Leads\t%d\n", leads)
	fmt.Fprintf(w, "AuditRecords\t%d\n", audit)
	return w.Flush()
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if deleteID != "" {
		deleted, err := storage.NewSessionStore(store).DeleteSession(ctx, deleteID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("会话不存在: %s", deleteID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已删除会话 %s\n", deleteID)
		return nil
	}

	snaps, err := store.QuerySessionSnapshots(ctx, storage.SessionQuery{UserID: listUser, Limit: listLimit, Desc: true})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION\tUSER\tAGENT\tMESSAGES\tVERSION\tSAVED")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.SessionID, orDash(s.UserID), orDash(s.CurrentAgent), s.MessageCount, s.Version, localTime(s.SavedAt))
	}
	return w.Flush()
}

func runLeads(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	leads, err := store.QueryLeads(ctx, storage.LeadQuery{Email: leadEmail, Limit: listLimit, Desc: true})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CREATED\tNAME\tEMAIL\tPHONE\tCOMPANY\tINTEREST")
	for _, l := range leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			localTime(l.CreatedAt), l.Name, l.Email, l.Phone, l.Company, orDash(clip(l.Interest, 40)))
	}
	return w.Flush()
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.QueryAuditRecords(ctx, storage.AuditQuery{
		TraceID: auditTrace,
		Status:  auditStatus,
		Limit:   listLimit,
		Desc:    true,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTRACE\tACTION\tSTATUS\tDURATION\tERROR")
	for _, r := range recs {
		dur := "-"
		if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, localTime(r.CreatedAt), orDash(r.TraceID), r.Action, r.Status, dur, orDash(clip(r.ErrorMessage, 60)))
	}
	return w.Flush()
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(out, "Policy: Sessions KeepAll=%v, Audit KeepAll=%v, Audit KeepLatest=%d\n",
		cfg.Retention.Sessions.KeepAll, cfg.Retention.Audit.KeepAll, cfg.Retention.Audit.KeepLatest)

	pruner, err := retention.NewPruner(store, cfg.Retention, slog.Default())
	if err != nil {
		return err
	}
	res, err := pruner.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	fmt.Fprintf(out, "Prune completed. Deleted %d session snapshots, %d audit records.\n", res.Sessions, res.Audit)

	if n, err := store.CountSessionSnapshots(ctx); err == nil {
		fmt.Fprintf(out, "Remaining Session Snapshots: %d\n", n)
	}
	if n, err := store.CountAuditRecords(ctx); err == nil {
		fmt.Fprintf(out, "Remaining Audit Records: %d\n", n)
	}
	return nil
}

func localTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
