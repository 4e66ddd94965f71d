package main

import (
	"context"
	"os"
	"path/filepath"

	stocksensecmd "stocksense/src/cmd"
	"stocksense/src/config"
	"stocksense/src/endpoint"
	"stocksense/src/endpoint/binance"
	"stocksense/src/endpoint/csvfile"

	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"
)

func main() {
	// 设置 JSON 配置格式
	configs.SetConfigurator(&configs.JsonConfig{})

	// 智能查找配置文件
	setupConfigPath()

	// 读取配置文件
	err := configs.ReadWithErr()
	if err != nil {
		// 如果读取失败，生成默认配置文件
		printErr := configs.Print()
		if printErr != nil {
			panic("生成默认配置文件失败: " + printErr.Error())
		}
		panic("请修改 config.json 配置文件后重新运行")
	}

	// 验证配置
	if err := config.AppConfig.Validate(); err != nil {
		panic("配置验证失败: " + err.Error())
	}

	// 创建带上下文的日志
	ctx := context.Background()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("StockSense")
	logger.Info("模拟器启动")

	// 数据源注册表，只创建一次
	registry := endpoint.NewRegistry()
	binance.Register(registry)
	csvfile.Register(registry)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error("关闭数据源失败", "error", err)
		}
	}()

	// 注册命令
	stocksensecmd.RegisterAllCommands(registry)

	// 运行命令行程序
	cmd.Run()
}

// setupConfigPath 智能设置配置文件路径
// 优先级: 1. bin/config.json 2. config.json 3. 生成默认配置
func setupConfigPath() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	execDir := filepath.Dir(execPath)
	binConfigPath := filepath.Join(execDir, "config.json")

	// 可执行文件旁有配置时切换工作目录，data/ 与 output/ 也随之相对于 bin
	if _, err := os.Stat(binConfigPath); err == nil {
		os.Chdir(execDir)
		return
	}
}
