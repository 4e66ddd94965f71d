package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stocksense/src/config"
	"stocksense/src/database"
	"stocksense/src/endpoint"
	"stocksense/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-log/log"
)

// RegisterSimulateCmd 注册模拟命令
func RegisterSimulateCmd(registry *endpoint.Registry) {
	var benchFile string
	var endpointName string
	var symbols string
	var timeframe string
	var startDate string
	var endDate string
	var policyName string
	var capital float64
	var fee float64
	var window int
	var episodes int
	var outputDir string
	var save bool

	cmd.RegisterCmd("simulate", "run validation and test episodes over historical data", func(args *arg.Arg) {
		args.String(&benchFile, "f", "bench parameter file (.json/.yaml), fields not given fall back to config.json")
		args.String(&endpointName, "e", "data endpoint (binance, csv)")
		args.String(&symbols, "s", "comma separated symbols, e.g. BTC/USDT,ETH/USDT")
		args.String(&timeframe, "t", "timeframe (e.g., 1h, 4h, 1d)")
		args.String(&startDate, "start", "start date (YYYY-MM-DD HH:MM:SS or YYYY-MM-DD)")
		args.String(&endDate, "end", "end date (default: now)")
		args.String(&policyName, "policy", "policy (random, hold, cash, sequence, onnx)")
		args.Float64(&capital, "capital", "initial amount")
		args.Float64(&fee, "fee", "proportional trading fee, e.g. 0.001")
		args.Int(&window, "window", "observation window (0 = current row only)")
		args.Int(&episodes, "episodes", "validation episodes")
		args.String(&outputDir, "o", "output directory")
		args.Bool(&save, "save", "save episode runs to the database")
		args.Parse()

		cfg := config.AppConfig.Clone()
		if benchFile != "" {
			loaded, err := config.LoadBenchFile(benchFile, cfg)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				os.Exit(1)
			}
			cfg = loaded
		}

		// 命令行参数覆盖配置
		if endpointName != "" {
			cfg.Data.Endpoint = endpointName
		}
		if symbols != "" {
			cfg.Data.Symbols = strings.Split(symbols, ",")
		}
		if timeframe != "" {
			cfg.Data.Timeframe = timeframe
		}
		if startDate != "" {
			cfg.Data.Since = startDate
		}
		if endDate != "" {
			cfg.Data.Until = endDate
		}
		if policyName != "" {
			cfg.Policy.Name = policyName
		}
		if capital > 0 {
			cfg.Environment.InitialAmount = capital
		}
		if fee > 0 {
			cfg.Environment.TradingFee = fee
		}
		if window > 0 {
			cfg.Environment.Window = window
		}
		if episodes > 0 {
			cfg.Environment.NValEpisodes = episodes
		}
		if outputDir != "" {
			cfg.Output.Dir = outputDir
		}
		if save {
			cfg.Output.SaveRuns = true
		}

		if err := runSimulate(cfg, registry); err != nil {
			fmt.Printf("❌ Simulation error: %v\n", err)
			os.Exit(1)
		}
	})
}

// runSimulate 运行模拟并打印结果
func runSimulate(cfg *config.Config, registry *endpoint.Registry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Simulate")

	var opts []trading.Option
	if cfg.Output.SaveRuns {
		store, err := database.Open(database.ConfigValue)
		if err != nil {
			logger.Error("数据库不可用，不保存回合记录", "error", err)
		} else {
			defer store.Close()
			opts = append(opts, trading.WithStore(store))
		}
	}

	ts, err := trading.NewTradingSystem(cfg, registry, opts...)
	if err != nil {
		return err
	}

	fmt.Println("🔄 Starting simulation...")
	result, err := ts.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println("✅ Simulation completed")

	printResults(cfg, result)
	return nil
}

// printResults 打印运行结果
func printResults(cfg *config.Config, result *trading.RunResult) {
	fmt.Println("\n============================================================")
	fmt.Println("📊 SIMULATION RESULTS")
	fmt.Println("============================================================")
	fmt.Printf("Run: %s\n", result.Name)
	fmt.Printf("Endpoint: %s\n", cfg.Data.Endpoint)
	fmt.Printf("Symbols: %s\n", strings.Join(cfg.Data.Symbols, ", "))
	fmt.Printf("Timeframe: %s\n", cfg.Data.Timeframe)
	fmt.Printf("Policy: %s\n", cfg.Policy.Name)
	fmt.Printf("Rows: %d\n", result.Rows)
	fmt.Printf("Initial Amount: $%.2f\n", cfg.Environment.InitialAmount)

	if len(result.Validation) > 0 {
		fmt.Println("\n🧪 VALIDATION EPISODES")
		fmt.Println("------------------------------")
		for _, v := range result.Validation {
			fmt.Printf("#%d  steps %4d  final $%.2f  return %.2f%%\n",
				v.Episode, v.Summary.Steps, v.Summary.FinalValue, v.Summary.TotalReturnPct)
		}
	}

	test := result.Test
	fmt.Println("\n📈 TEST EPISODE")
	fmt.Println("------------------------------")
	fmt.Printf("Period: %s → %s\n", test.Start.Format("2006-01-02 15:04"), test.End.Format("2006-01-02 15:04"))
	fmt.Printf("Final Value: $%.2f\n", test.Summary.FinalValue)
	fmt.Printf("Total Return: %.2f%%\n", test.Summary.TotalReturnPct)
	if test.Stats != nil {
		fmt.Printf("Annualized Return: %s\n", formatPercent(test.Stats.AnnualizedReturn))
		fmt.Printf("Max Drawdown: %s\n", formatPercent(test.Stats.MaxDrawdown))
		fmt.Printf("Sharpe Ratio: %s\n", test.Stats.SharpeRatio.StringFixed(2))
	}
	fmt.Printf("Total Trades: %d\n", test.Summary.Trades)
	fmt.Printf("Total Fees: $%.2f\n", test.Summary.FeesPaid)
	fmt.Printf("Outcome: %s\n", test.Outcome)

	fmt.Printf("\n📁 Output: %s\n", result.OutputDir)
	fmt.Println("============================================================")
}
