// Package version 构建版本信息
package version

import (
	"os"
	"runtime"
	"strings"
)

var (
	// Version 版本号，构建时通过 -ldflags 注入；未注入时尝试读取 VERSION 文件
	Version = "dev"

	// BuildTime 构建时间，通过 -ldflags 注入
	BuildTime = ""

	// GitCommit Git 提交哈希，通过 -ldflags 注入
	GitCommit = ""
)

func init() {
	if Version == "dev" {
		Version = readVersionFromFile()
	}
}

// readVersionFromFile 从 VERSION 文件读取版本号
func readVersionFromFile() string {
	data, err := os.ReadFile("VERSION")
	if err != nil {
		data, err = os.ReadFile("../VERSION")
		if err != nil {
			return "dev"
		}
	}

	version := strings.TrimSpace(string(data))
	if version == "" {
		return "dev"
	}
	return strings.TrimPrefix(version, "v")
}

// Info 版本详情
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get 当前版本详情
func Get() Info {
	return Info{
		Version:   GetShortVersion(),
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion 获取完整版本信息
func GetVersion() string {
	version := "v" + Version
	if BuildTime != "" {
		version += " (built " + BuildTime + ")"
	}
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		version += " commit " + commit
	}
	return version
}

// GetShortVersion 获取简短版本号
func GetShortVersion() string {
	return "v" + Version
}
