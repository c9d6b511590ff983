package decode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RawMessage is a message as received from RabbitMQ, before decoding.
// It is implemented by Delivery and Snapshot only.
type RawMessage interface {
	envelope() (envelope, error)
}

// Properties are the AMQP basic properties the decoder cares about.
type Properties struct {
	ContentType     string
	ContentEncoding string
	MessageID       string
	CorrelationID   string
	Timestamp       int64 // seconds since the Unix epoch, 0 when unset
	Headers         map[string]any
}

// Delivery is a message received over AMQP, either pushed to a consumer or
// pulled with basic.get.
type Delivery struct {
	RoutingKey string
	Exchange   string
	Body       []byte
	Properties Properties
}

// Snapshot is a message as returned by the management API's
// POST /api/queues/{vhost}/{queue}/get endpoint.
type Snapshot struct {
	RoutingKey      string             `json:"routing_key"`
	Exchange        string             `json:"exchange"`
	Payload         string             `json:"payload"`
	PayloadEncoding string             `json:"payload_encoding"`
	PayloadBytes    int                `json:"payload_bytes"`
	Redelivered     bool               `json:"redelivered"`
	MessageCount    int                `json:"message_count"`
	Properties      SnapshotProperties `json:"properties"`
}

// SnapshotProperties mirrors the "properties" object of a snapshot.
type SnapshotProperties struct {
	ContentType     string         `json:"content_type,omitempty"`
	ContentEncoding string         `json:"content_encoding,omitempty"`
	MessageID       string         `json:"message_id,omitempty"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	Timestamp       int64          `json:"timestamp,omitempty"`
	DeliveryMode    int            `json:"delivery_mode,omitempty"`
	Headers         map[string]any `json:"headers,omitempty"`
}

// UnmarshalJSON accepts the empty array the management API sends for a
// message published without properties.
func (p *SnapshotProperties) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*p = SnapshotProperties{}
		return nil
	}
	type plain SnapshotProperties
	var v plain
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*p = SnapshotProperties(v)
	return nil
}

// envelope is the common shape both variants translate into.
type envelope struct {
	routingKey string
	exchange   string
	props      Properties
	body       []byte
	bodyErr    error
}

var errNilMessage = errors.New("nil message")

func (d *Delivery) envelope() (envelope, error) {
	if d == nil {
		return envelope{}, errNilMessage
	}
	return envelope{
		routingKey: d.RoutingKey,
		exchange:   d.Exchange,
		props:      d.Properties,
		body:       d.Body,
	}, nil
}

func (s *Snapshot) envelope() (envelope, error) {
	if s == nil {
		return envelope{}, errNilMessage
	}
	env := envelope{
		routingKey: s.RoutingKey,
		exchange:   s.Exchange,
		props: Properties{
			ContentType:     s.Properties.ContentType,
			ContentEncoding: s.Properties.ContentEncoding,
			MessageID:       s.Properties.MessageID,
			CorrelationID:   s.Properties.CorrelationID,
			Timestamp:       s.Properties.Timestamp,
			Headers:         s.Properties.Headers,
		},
	}
	env.body, env.bodyErr = s.payloadBytes()
	return env, nil
}

func (s *Snapshot) payloadBytes() ([]byte, error) {
	switch strings.ToLower(s.PayloadEncoding) {
	case "", "base64":
		b, err := base64.StdEncoding.DecodeString(s.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return b, nil
	case "string":
		return []byte(s.Payload), nil
	default:
		return nil, fmt.Errorf("unsupported payload encoding %q", s.PayloadEncoding)
	}
}
