package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/ui"
)

var (
	analyzeJSON    bool
	analyzeOffline bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "分析需求文档并估算预算",
	Long: `读取需求文档，由技术 Agent 的模型给出复杂度、技术栈、工期与风险，
并按日费率模型估算预算。模型输出无法解析时退回关键词启发式分析。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("读取文件失败: %w", err)
		}

		var gen llm.Generator
		if !analyzeOffline {
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if gen, err = newGenerator(ctx, store); err != nil {
				return err
			}
		}

		filename := filepath.Base(args[0])
		analysis, err := agent.AnalyzeDocument(ctx, gen, slog.Default(), filename, string(data))
		if err != nil {
			return err
		}
		budget := agent.EstimateBudget(analysis)

		out := cmd.OutOrStdout()
		if analyzeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Analysis agent.ProjectAnalysis `json:"analisis"`
				Budget   agent.BudgetEstimate  `json:"presupuesto"`
			}{analysis, budget})
		}
		fmt.Fprintln(out, ui.FormatAnalysis(filename, analysis, budget))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "以 JSON 输出")
	analyzeCmd.Flags().BoolVar(&analyzeOffline, "offline", false, "不调用模型，仅使用启发式分析")
}
