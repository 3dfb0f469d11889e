package cmd

// RegisterAllTradingCommands 注册所有命令
func RegisterAllTradingCommands() {
	RegisterBacktestCmd()
	RegisterGridCmd()
	RegisterKlineCmd()
	RegisterPingCmd()
	RegisterSignalCmd()
}
