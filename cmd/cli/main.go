// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agent-platform/internal/app"
	"agent-platform/pkg/config"
)

const defaultConfigPath = "configs/config.yaml"

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Plan-act-verify tool-using agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $AGENT_CONFIG or "+defaultConfigPath+")")
	cmd.AddCommand(solveCmd())
	cmd.AddCommand(batchCmd())
	cmd.AddCommand(scoreCmd())
	cmd.AddCommand(toolsCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "agentctl 0.1.0")
		},
	}
}

// resolveConfigPath 依次取 --config、AGENT_CONFIG、默认路径（存在时）
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("AGENT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

func loadBootstrap(ctx context.Context) (*app.Bootstrap, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	b, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化失败: %w", err)
	}
	return b, nil
}

// signalContext 在 SIGINT/SIGTERM 时取消，批量运行据此停止派发
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
