package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/logging"
	"github.com/wwwzy/SalesAgent/internal/tui"
	"github.com/wwwzy/SalesAgent/internal/ui"
)

var (
	chatUI     string
	chatUser   string
	chatResume bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `进入对话模式，与销售助手交谈。
支持 /reset、/agente <nombre>、/archivo <ruta>、/estado 命令，exit/quit 退出。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		// 日志写文件，避免与流式输出交错
		logFile, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		defer logFile.Close()
		slog.SetDefault(logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Writer: logFile,
		}))

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !chatResume {
			a.router.Reset(ctx, chatUser)
		}

		return uiImpl.Run(ctx, a.router, ui.ChatOptions{UserID: chatUser})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatUser, "user", ui.DefaultUserID, "用户标识，会话按用户保存")
	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "继续该用户最近一次保存的会话")
}
