package httpservice

import "time"

// HTTPServiceConfig HTTP 服务配置
type HTTPServiceConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MaxBodySize int64  `yaml:"max_body_size"`

	// 模块配置
	Modules ModulesConfig `yaml:"modules"`

	// 通用配置
	CORS CORSConfig `yaml:"cors"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModulesConfig 模块配置
type ModulesConfig struct {
	WebSocket     WebSocketModuleConfig     `yaml:"websocket"`
	ManagementAPI ManagementAPIModuleConfig `yaml:"management_api"`
}

// WebSocketModuleConfig WebSocket 传输模块配置
type WebSocketModuleConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Path           string  `yaml:"path"`             // 升级路径
	PublishRate    float64 `yaml:"publish_rate"`     // 每连接每秒发布数，0 表示不限
	PublishBurst   int     `yaml:"publish_burst"`    // 突发上限
	MaxMessageSize int64   `yaml:"max_message_size"` // 单帧最大字节数
}

// ManagementAPIModuleConfig 管理 API 模块配置
type ManagementAPIModuleConfig struct {
	Enabled bool       `yaml:"enabled"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type   string `yaml:"type"`   // none / bearer
	Secret string `yaml:"secret"` // Bearer Token
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DefaultHTTPServiceConfig 默认配置
func DefaultHTTPServiceConfig() *HTTPServiceConfig {
	return &HTTPServiceConfig{
		ListenAddr:  ":8080",
		MaxBodySize: 1 << 20,
		Modules: ModulesConfig{
			WebSocket: WebSocketModuleConfig{
				Enabled:        true,
				Path:           "/ws",
				MaxMessageSize: 1 << 20,
			},
			ManagementAPI: ManagementAPIModuleConfig{
				Enabled: true,
				Auth:    AuthConfig{Type: "none"},
			},
		},
		CORS: CORSConfig{
			Enabled:        false,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		ShutdownTimeout: 5 * time.Second,
	}
}
