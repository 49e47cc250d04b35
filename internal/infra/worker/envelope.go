package worker

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"mediaforge/internal/domain/model"
)

var ErrMalformedEnvelope = errors.New("malformed push envelope")

// PushEnvelope is the body a push subscription POSTs to the worker.
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		PublishTime string            `json:"publishTime,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// EncodePush wraps a queue payload the way a push subscription delivers it.
func EncodePush(messageID string, payload []byte) ([]byte, error) {
	var env PushEnvelope
	env.Message.Data = base64.StdEncoding.EncodeToString(payload)
	env.Message.MessageID = messageID
	return json.Marshal(env)
}

// DecodePush unwraps a push body into the job message and its transport id.
func DecodePush(body []byte) (model.JobMessage, string, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.JobMessage{}, "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Message.Data == "" {
		return model.JobMessage{}, env.Message.MessageID, fmt.Errorf("%w: missing message data", ErrMalformedEnvelope)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return model.JobMessage{}, env.Message.MessageID, fmt.Errorf("%w: data is not base64: %v", ErrMalformedEnvelope, err)
	}
	msg, err := DecodeJobMessage(raw)
	return msg, env.Message.MessageID, err
}

// DecodeJobMessage parses a raw queue payload.
func DecodeJobMessage(raw []byte) (model.JobMessage, error) {
	var msg model.JobMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.JobMessage{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if msg.Kind == "" && msg.IllustrationID == "" && msg.BrandID != "" {
		msg.Kind = model.JobKindTraining
	}
	if msg.JobID() == "" {
		return msg, fmt.Errorf("%w: message names no job", ErrMalformedEnvelope)
	}
	return msg, nil
}
