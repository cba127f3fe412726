package server

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"relaybus-core/internal/config/schema"
	"relaybus-core/internal/version"
)

const (
	bannerWidth = 60
)

var (
	bannerCyan    = color.New(color.FgCyan).SprintFunc()
	bannerBlue    = color.New(color.FgBlue).SprintFunc()
	bannerMagenta = color.New(color.FgMagenta).SprintFunc()
	bannerBold    = color.New(color.Bold).SprintFunc()
	bannerGreen   = color.New(color.FgGreen).SprintFunc()
	bannerYellow  = color.New(color.FgYellow).SprintFunc()
	bannerFaint   = color.New(color.Faint).SprintFunc()
)

// DisplayStartupBanner 显示启动信息横幅，需在 Start 之后调用以获得实际监听地址
func (s *Server) DisplayStartupBanner(w io.Writer) {
	displayLogo(w)
	displayServerInfo(w, s)
	displayEngine(w, s)
	displayHTTPService(w, s)
	displayFooter(w)
}

// displayLogo 显示 Logo
func displayLogo(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bannerCyan(` ___  ___ _      ___   _____ _   _ ___`))
	fmt.Fprintf(w, "  %s    %s\n", bannerCyan(`| _ \| __| |    /_\ \ / / _ ) | | / __|`), bannerBold("Relaybus Core Server"))
	fmt.Fprintf(w, "  %s\n", bannerBlue(`|   /| _|| |__ / _ \ V /| _ \ |_| \__ \`))
	fmt.Fprintf(w, "  %s    %s\n", bannerMagenta(`|_|_\|___|____/_/ \_\_| |___/\___/|___/`), bannerFaint("Version "+version.GetShortVersion()))
	fmt.Fprintln(w)
}

// displayServerInfo 显示服务器信息
func displayServerInfo(w io.Writer, s *Server) {
	sectionHeader(w, "Server Information")

	configPath := s.deps.ConfigPath
	if configPath == "" {
		configPath = bannerFaint("(defaults + environment)")
	}

	infoRows := []struct {
		label string
		value string
	}{
		{"Node ID", s.NodeID()},
		{"Config File", configPath},
		{"Start Time", time.Now().Format("2006-01-02 15:04:05")},
		{"Log", formatLogInfo(&s.config.Log)},
	}
	for _, row := range infoRows {
		fmt.Fprintf(w, "  %-18s %s\n", bannerBold(row.label+":"), row.value)
	}
	fmt.Fprintln(w)
}

// displayEngine 显示引擎信息
func displayEngine(w io.Writer, s *Server) {
	sectionHeader(w, "Propagation Engine")

	status := bannerYellow("✗ None (local publish only)")
	if s.Engine() != nil {
		status = bannerGreen("✓ " + s.Engine().Name())
	}
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Type:"), formatEngineInfo(&s.config.Engine))
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Status:"), status)
	fmt.Fprintln(w)
}

// displayHTTPService 显示HTTP服务信息（包含所有HTTP模块）
func displayHTTPService(w io.Writer, s *Server) {
	sectionHeader(w, "HTTP Service")

	addr := s.Addr()
	authType := "none"
	if !s.config.Server.APIToken.IsEmpty() {
		authType = "bearer"
	}

	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Address:"), "http://"+addr)
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Authentication:"), authType)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s\n", bannerBold("Modules:"))
	fmt.Fprintf(w, "    • %s %s\n", "WebSocket", bannerFaint("(ws://"+addr+s.config.Server.Path+")"))
	fmt.Fprintf(w, "    • %s %s\n", "Management API", bannerFaint("(/api)"))
	fmt.Fprintf(w, "    • %s %s\n", "Health", bannerFaint("(/healthz)"))
	if s.config.Server.PublishRate > 0 {
		fmt.Fprintf(w, "    • %s %s\n", "Publish Limit",
			bannerFaint(fmt.Sprintf("(%g/s per connection, burst %d)", s.config.Server.PublishRate, s.config.Server.PublishBurst)))
	}
	fmt.Fprintln(w)
}

// displayFooter 显示页脚
func displayFooter(w io.Writer) {
	fmt.Fprintln(w, bannerFaint("  "+strings.Repeat("━", bannerWidth)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bannerFaint("Server is running. Press Ctrl+C to stop."))
}

func sectionHeader(w io.Writer, title string) {
	fmt.Fprintln(w, bannerBold("  "+title))
	fmt.Fprintln(w, bannerFaint("  "+strings.Repeat("─", bannerWidth)))
}

// formatLogInfo 格式化日志输出信息
func formatLogInfo(cfg *schema.LogConfig) string {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	switch strings.ToLower(cfg.Output) {
	case "file":
		path, err := filepath.Abs(cfg.File)
		if err != nil {
			path = cfg.File
		}
		return fmt.Sprintf("%s → %s", level, path)
	case "stderr":
		return level + " → stderr"
	default:
		return level + " → stdout"
	}
}

// formatEngineInfo 格式化引擎配置信息
func formatEngineInfo(cfg *schema.EngineConfig) string {
	switch cfg.Type {
	case schema.EngineTypeRedis:
		mode := "Standalone"
		if cfg.Redis.ClusterMode {
			mode = "Cluster"
		}
		return fmt.Sprintf("Redis %s (%s, prefix %q)", mode, strings.Join(cfg.Redis.Addrs, ","), cfg.Redis.Prefix)
	case schema.EngineTypeMemory:
		return "Memory (in-process)"
	default:
		return "None"
	}
}
