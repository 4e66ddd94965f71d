package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// DateLayout results.csv 中的时间格式
const DateLayout = "2006-01-02 15:04:05"

// ResultsHeader results.csv 的列
var ResultsHeader = []string{"date", "history", "reward"}

// WriteResults 写出逐步的价值与奖励
func WriteResults(w io.Writer, points []EquityPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ResultsHeader); err != nil {
		return err
	}
	for _, p := range points {
		err := writer.Write([]string{
			p.Timestamp.UTC().Format(DateLayout),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			strconv.FormatFloat(p.Reward, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Run 一次运行的完整输出
type Run struct {
	Name   string         `json:"name"`
	Title  string         `json:"title"`
	Points []EquityPoint  `json:"-"`
	Stats  *Statistics    `json:"statistics"`
	Params map[string]any `json:"params,omitempty"`
}

// Save 在 dir/<name>/ 下写出 results.csv、equity.png 与 summary.json，返回目录
func Save(dir string, run *Run) (string, error) {
	out := filepath.Join(dir, run.Name)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(filepath.Join(out, "results.csv"))
	if err != nil {
		return "", fmt.Errorf("failed to create results.csv: %w", err)
	}
	if err := WriteResults(f, run.Points); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write results.csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	summary, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(out, "summary.json"), summary, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary.json: %w", err)
	}

	// 点数不足时不画图
	if len(run.Points) >= 2 {
		png, err := RenderEquityChart(run.Points, run.Title)
		if err != nil {
			return "", fmt.Errorf("failed to render equity chart: %w", err)
		}
		if err := os.WriteFile(filepath.Join(out, "equity.png"), png, 0o644); err != nil {
			return "", fmt.Errorf("failed to write equity.png: %w", err)
		}
	}

	return out, nil
}
