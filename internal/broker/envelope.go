package broker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	coreerrors "relaybus-core/internal/core/errors"
)

// Envelope 引擎之间传递的消息
// NodeID 用于丢弃本节点发出的回显，ID 用于去重
type Envelope struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Payload   []byte    `json:"payload"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope 创建消息
func NewEnvelope(nodeID, channel string, payload []byte) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Channel:   channel,
		Payload:   payload,
		NodeID:    nodeID,
		Timestamp: time.Now(),
	}
}

// Encode 序列化为 JSON
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "encode envelope")
	}
	return data, nil
}

// DecodeEnvelope 反序列化
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "decode envelope")
	}
	if env.Channel == "" {
		return nil, coreerrors.New(coreerrors.CodeInvalidData, "envelope without channel")
	}
	return &env, nil
}
