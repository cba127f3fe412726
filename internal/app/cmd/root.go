// Package cmd 提供 relaybus CLI 的命令框架
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	corelog "relaybus-core/internal/core/log"
	"relaybus-core/internal/version"
)

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "relaybus",
		Short: "Relaybus - pub/sub dispatch and propagation server",
		Long: `Relaybus routes published messages to local subscribers and propagates
them to peer nodes through a pluggable engine (memory or Redis).

Subscriptions match channels by exact name, Redis glob, NATS wildcard or
RabbitMQ topic patterns.

Quick Start:
  relaybus serve                       Start with defaults on :8080
  relaybus serve -c relaybus.yaml      Start with a config file
  relaybus check-config                Print the effective configuration`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")

	rootCmd.AddCommand(newServeCommand(&configFile))
	rootCmd.AddCommand(newCheckConfigCommand(&configFile))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute 执行根命令
func Execute() {
	// 全局 panic recovery
	defer func() {
		if r := recover(); r != nil {
			corelog.Errorf("FATAL: main goroutine panic recovered: %v", r)
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
