package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/config"
	"github.com/wwwzy/SalesAgent/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "salesagent",
	Short: "SalesAgent 是面向西班牙语客户的销售对话助手",
	Long: `SalesAgent 对每条用户消息做情感分析与意图识别，
在通用、销售、技术与信息收集四个 Agent 之间路由，并以流式方式返回回复。`,
	SilenceUsage: true,
}

// Execute 由 main.main() 调用。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、./configs/config.yaml、$HOME/.salesagent/config.yaml 搜索）")
}

// initConfig 加载 .env、配置文件和环境变量，并安装默认 logger。
func initConfig() {
	// .env 不存在时直接使用进程环境变量
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}))
}
