package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/llm"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "检查文本生成服务与数据库连通性",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+5*time.Second)
		defer cancel()
		out := cmd.OutOrStdout()

		store, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("数据库不可用: %w", err)
		}
		fmt.Fprintf(out, "数据库: OK (%s)\n", cfg.Storage.Path)

		gen, err := newGenerator(ctx, nil)
		if err != nil {
			return err
		}

		start := time.Now()
		if hc, ok := gen.(llm.HealthChecker); ok {
			err = hc.Health(ctx)
		} else {
			// 方舟没有模型列表接口，用一次最小生成代替
			_, err = gen.Generate(ctx, "Responde solo con OK.", "ping")
		}
		if err != nil {
			return fmt.Errorf("文本生成服务不可用 (%s): %w", cfg.LLM.Provider, err)
		}
		fmt.Fprintf(out, "文本生成服务: OK (%s, %s)\n", cfg.LLM.Provider, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
