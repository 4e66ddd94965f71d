package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"stocksense/src/endpoint"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// serverClock 能返回服务器时间的数据源
type serverClock interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// RegisterPingCmd 注册ping测试命令
func RegisterPingCmd(registry *endpoint.Registry) {
	var endpointName string
	var verbose bool
	var timeout int

	cmd.RegisterCmd("ping", "test connectivity to a data endpoint", func(args *arg.Arg) {
		args.String(&endpointName, "e", "data endpoint (default: binance)")
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Int(&timeout, "t", "timeout in seconds (default: 10)")
		args.Parse()

		// 设置默认值
		if endpointName == "" {
			endpointName = "binance"
		}
		if timeout <= 0 {
			timeout = 10
		}

		err := runPingTest(registry, endpointName, verbose, timeout)
		if err != nil {
			fmt.Printf("❌ Ping test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Ping test successful!")
	})
}

// runPingTest 执行ping测试
func runPingTest(registry *endpoint.Registry, endpointName string, verbose bool, timeoutSeconds int) error {
	ep, err := registry.Get(endpointName)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Println("🌐 数据源连通性测试")
		fmt.Println("================================")
		fmt.Printf("📡 数据源: %s\n", ep.Name())
		fmt.Printf("⏰ 超时时间: %d秒\n", timeoutSeconds)
		fmt.Println()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	startTime := time.Now()
	err = ep.Ping(ctx)
	latency := time.Since(startTime)

	if err != nil {
		if verbose {
			fmt.Printf("❌ 连接失败: %v\n", err)
			fmt.Printf("⏱️ 测试耗时: %v\n", latency)
		}
		return err
	}

	if !verbose {
		return nil
	}

	fmt.Printf("✅ 服务器响应正常\n")
	fmt.Printf("⏱️ 响应延迟: %v\n", latency)

	// 获取服务器时间进行额外验证
	if clock, ok := ep.(serverClock); ok {
		fmt.Print("🕐 获取服务器时间...")
		serverTime, timeErr := clock.ServerTime(ctx)
		if timeErr == nil {
			fmt.Printf(" %v\n", serverTime.Format("2006-01-02 15:04:05 MST"))

			timeDiff := int64(math.Abs(float64(serverTime.Unix() - time.Now().Unix())))
			fmt.Printf("⏰ 本地时间差: %ds", timeDiff)
			if timeDiff > 60 {
				fmt.Printf(" ⚠️ 时间差较大")
			}
			fmt.Println()
		} else {
			fmt.Printf(" 失败: %v\n", timeErr)
		}
	}

	fmt.Printf("🌍 网络质量: ")
	switch {
	case latency < 100*time.Millisecond:
		fmt.Println("优秀")
	case latency < 300*time.Millisecond:
		fmt.Println("良好")
	case latency < time.Second:
		fmt.Println("一般")
	default:
		fmt.Println("较差")
	}
	return nil
}
