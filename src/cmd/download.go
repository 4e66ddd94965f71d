package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stocksense/src/config"
	"stocksense/src/endpoint"
	"stocksense/src/endpoint/csvfile"
	"stocksense/src/timeframes"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterDownloadCmd 注册K线下载命令：经数据源缓存获取K线并导出为 CSV
func RegisterDownloadCmd(registry *endpoint.Registry) {
	var endpointName string
	var symbols string
	var interval string
	var startDate string
	var endDate string
	var outputDir string
	var verbose bool

	cmd.RegisterCmd("download", "download klines into the cache and export them as CSV", func(args *arg.Arg) {
		args.String(&endpointName, "e", "data endpoint (default: binance)")
		args.String(&symbols, "s", "comma separated symbols (default: BTC/USDT)")
		args.String(&interval, "t", "timeframe (default: 1d)")
		args.String(&startDate, "start", "start date (YYYY-MM-DD HH:MM:SS or YYYY-MM-DD) - required")
		args.String(&endDate, "end", "end date (default: now)")
		args.String(&outputDir, "o", "CSV output directory (default: csv endpoint dir)")
		args.Bool(&verbose, "v", "print the last klines of each symbol")
		args.Parse()

		// 设置默认值
		if endpointName == "" {
			endpointName = "binance"
		}
		if symbols == "" {
			symbols = "BTC/USDT"
		}
		if interval == "" {
			interval = timeframes.Default.String()
		}
		if outputDir == "" {
			outputDir = csvfile.ConfigValue.Dir
		}
		if startDate == "" {
			fmt.Printf("❌ Error: start date is required\n")
			fmt.Printf("💡 Usage: ./bin/stocksense download -s BTC/USDT,ETH/USDT -t 1h -start 2024-01-01\n")
			os.Exit(1)
		}

		err := runDownload(registry, endpointName, symbols, interval, startDate, endDate, outputDir, verbose)
		if err != nil {
			fmt.Printf("❌ Download failed: %v\n", err)
			os.Exit(1)
		}
	})
}

// runDownload 并发下载并写出 CSV
func runDownload(registry *endpoint.Registry, endpointName, symbols, interval, startDate, endDate, outputDir string, verbose bool) error {
	pairs, err := parseSymbols(symbols)
	if err != nil {
		return err
	}
	tf, err := timeframes.ParseTimeframe(interval)
	if err != nil {
		return err
	}
	since, err := config.ParseDate(startDate)
	if err != nil {
		return err
	}
	until := time.Now().UTC()
	if endDate != "" {
		if until, err = config.ParseDate(endDate); err != nil {
			return err
		}
	}

	ep, err := registry.Get(endpointName)
	if err != nil {
		return err
	}

	fmt.Printf("📊 K线下载\n")
	fmt.Printf("================================\n")
	fmt.Printf("🔸 数据源: %s\n", ep.Name())
	fmt.Printf("🔸 交易对: %s\n", symbols)
	fmt.Printf("🔸 时间周期: %s\n", tf)
	fmt.Printf("🔸 时间范围: %s → %s\n", since.Format(time.DateTime), until.Format(time.DateTime))
	fmt.Println()

	fmt.Print("🔄 正在获取K线数据...")
	startTime := time.Now()
	series, err := endpoint.GetMultipleKlines(context.Background(), ep, pairs, tf, since, until)
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf(" 完成! (耗时: %v)\n", time.Since(startTime))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	for _, s := range series {
		path := filepath.Join(outputDir, csvfile.FileName(s.Pair, tf))
		if err := writeCSV(path, s.Klines); err != nil {
			return err
		}
		fmt.Printf("✓ %s: %d 根K线 → %s\n", s.Pair, len(s.Klines), path)

		if verbose && len(s.Klines) > 0 {
			from := max(len(s.Klines)-5, 0)
			for _, k := range s.Klines[from:] {
				fmt.Printf("   %s  O %s  H %s  L %s  C %s  V %s\n",
					k.OpenTime.Format("01-02 15:04"),
					formatPrice(k.Open), formatPrice(k.High), formatPrice(k.Low), formatPrice(k.Close),
					formatVolume(k.Volume))
			}
		}
	}

	fmt.Println("\n✅ 下载完成!")
	return nil
}

func writeCSV(path string, klines []*endpoint.KlineData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := csvfile.Write(f, klines); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
