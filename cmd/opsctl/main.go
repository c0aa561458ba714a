package main

import (
	"fmt"
	"os"

	"merchantpay/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "opsctl",
		Short: "merchantpay 运维工具",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")

	rootCmd.AddCommand(verifyBalanceCmd())
	rootCmd.AddCommand(replayDLQCmd())
	rootCmd.AddCommand(outboxRequeueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
