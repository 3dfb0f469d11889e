package main

import (
	"context"
	"os"
	"path/filepath"

	tradingcmd "tradingbot/src/cmd"
	"tradingbot/src/config"

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

	ctx := context.Background()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingBot")
	logger.Info("回测工具启动")

	// 注册命令
	tradingcmd.RegisterAllTradingCommands()

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

	// 检查 bin/config.json 是否存在
	if _, err := os.Stat(binConfigPath); err == nil {
		os.Chdir(execDir)
		return
	}

	// 都没有找到时保持当前目录，让程序生成默认配置
}
