package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/retention"
)

// startCmd 代表 start 命令
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动后台数据清理服务",
	Long: `启动 SalesAgent 后台服务。
按 retention 配置周期性清理过期的会话快照与审计记录，直到收到 SIGINT/SIGTERM。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fmt.Println("正在初始化存储...")
		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if !cfg.Retention.Enabled {
			fmt.Println("retention.enabled=false，没有需要运行的后台任务。")
			return nil
		}

		pruner, err := retention.NewPruner(store, cfg.Retention, slog.Default())
		if err != nil {
			return fmt.Errorf("创建清理任务失败: %w", err)
		}
		mgr := retention.NewManager(cfg.Retention).WithPruner(pruner)

		fmt.Println("正在启动清理服务...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动管理器失败: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		fmt.Printf("SalesAgent 已启动（间隔 %s）。按 Ctrl+C 停止。\n", cfg.Retention.Interval)

		select {
		case sig := <-sigChan:
			fmt.Printf("收到信号: %s, 正在关闭...\n", sig)
		case <-ctx.Done():
			fmt.Println("上下文已取消, 正在关闭...")
		}

		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("管理器停止时发生错误: %w", err)
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
