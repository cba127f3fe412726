package management

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"relaybus-core/internal/engine"
	"relaybus-core/internal/httpservice"
	"relaybus-core/internal/version"
)

// PublishResponse 发布结果
type PublishResponse struct {
	Channel  string `json:"channel"`
	Route    string `json:"route"`
	Accepted bool   `json:"accepted"`
	Matched  *int   `json:"matched,omitempty"`
}

// SubscriptionView 订阅信息
type SubscriptionView struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Channel   string    `json:"channel"`
	Mode      string    `json:"mode"`
	Encoding  string    `json:"encoding,omitempty"`
	Global    bool      `json:"global"`
	CreatedAt time.Time `json:"created_at"`
}

// EngineView 引擎信息
type EngineView struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// handlePublish 发布消息，请求体即消息内容
// ?route=local 只投递本节点订阅
func (m *ManagementModule) handlePublish(w http.ResponseWriter, r *http.Request) {
	channel, err := getStringPathVar(r, "channel")
	if err != nil {
		m.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		m.respondError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}

	route := r.URL.Query().Get("route")
	switch route {
	case "local":
		n, ok := m.bus.Dispatch(channel, body, engine.LocalOnly())
		if !ok {
			m.respondError(w, http.StatusServiceUnavailable, "publish rejected: bus closed")
			return
		}
		m.respondJSON(w, http.StatusOK, PublishResponse{Channel: channel, Route: engine.LocalOnly().String(), Accepted: true, Matched: &n})

	case "", "default":
		if !m.bus.Publish(channel, body) {
			m.logger.Warnf("ManagementModule: publish to %s rejected", channel)
			m.respondError(w, http.StatusServiceUnavailable, "publish rejected: no engine available")
			return
		}
		m.respondJSON(w, http.StatusAccepted, PublishResponse{Channel: channel, Route: engine.DefaultRoute().String(), Accepted: true})

	default:
		m.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown route %q", route))
	}
}

// handleGetStats 获取总线统计
func (m *ManagementModule) handleGetStats(w http.ResponseWriter, r *http.Request) {
	m.respondJSON(w, http.StatusOK, m.bus.Stats())
}

// handleListSubscriptions 列出订阅，?owner= 按连接过滤
func (m *ManagementModule) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	owner, filter := r.URL.Query().Get("owner"), r.URL.Query().Has("owner")

	views := make([]SubscriptionView, 0)
	for _, sub := range m.bus.Subscriptions() {
		if filter && sub.Owner != owner {
			continue
		}
		v := SubscriptionView{
			ID:        sub.ID,
			Owner:     sub.Owner,
			Channel:   sub.Channel,
			Mode:      sub.Mode.String(),
			Global:    sub.IsGlobal(),
			CreatedAt: sub.CreatedAt,
		}
		if sub.Handler == nil {
			v.Encoding = string(sub.As.Normalize())
		}
		views = append(views, v)
	}
	m.respondJSON(w, http.StatusOK, views)
}

// handleListEngines 列出已注册引擎
func (m *ManagementModule) handleListEngines(w http.ResponseWriter, r *http.Request) {
	def := m.bus.DefaultEngine()
	views := make([]EngineView, 0)
	for _, e := range m.bus.Engines() {
		views = append(views, EngineView{Name: engine.NameOf(e), Default: def != nil && e == def})
	}
	m.respondJSON(w, http.StatusOK, views)
}

// handleGetVersion 版本信息
func (m *ManagementModule) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	m.respondJSON(w, http.StatusOK, version.Get())
}

// respondJSON 发送 JSON 响应
func (m *ManagementModule) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	httpservice.RespondJSON(w, statusCode, data)
}

// respondError 发送错误响应
func (m *ManagementModule) respondError(w http.ResponseWriter, statusCode int, message string) {
	httpservice.RespondError(w, statusCode, message)
}

// getStringPathVar 获取路径参数（string）
func getStringPathVar(r *http.Request, key string) (string, error) {
	vars := mux.Vars(r)
	str := vars[key]
	if str == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return str, nil
}
