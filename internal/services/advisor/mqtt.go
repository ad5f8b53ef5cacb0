package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/rabbitmq"
)

const (
	RequestTopicPrefix = "advisory/request/"
	RequestTopicFilter = RequestTopicPrefix + "+"
	ResultTopicTmpl    = "advisory/recommendation/{field}"
)

// Deduper is implemented by cache.Memory.
type Deduper interface {
	Add(key string, ttl time.Duration) bool
	Remove(key string)
}

// MQTTHandler answers advisory/request/{field} with a RecommendationEvent on
// advisory/recommendation/{field}. Failures are published too, with Error and
// ErrorKind set, so the requester is never left waiting. Only answered
// payloads are deduplicated: after a failure the same payload can be resent.
type MQTTHandler struct {
	advisor   *Advisor
	publisher rabbitmq.IPublisher
	dedup     Deduper
	dedupTTL  time.Duration
	topicTmpl string
	timeout   time.Duration
	qos       byte
	log       *zap.Logger
	metrics   *metrics.Collector
}

func NewMQTTHandler(a *Advisor, pub rabbitmq.IPublisher, dedup Deduper, log *zap.Logger, m *metrics.Collector) *MQTTHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTTHandler{
		advisor:   a,
		publisher: pub,
		dedup:     dedup,
		dedupTTL:  10 * time.Minute,
		topicTmpl: ResultTopicTmpl,
		timeout:   30 * time.Second,
		qos:       1,
		log:       log,
		metrics:   m,
	}
}

func (h *MQTTHandler) SetResultTopicTemplate(t string) {
	if strings.TrimSpace(t) != "" {
		h.topicTmpl = t
	}
}

func (h *MQTTHandler) SetTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

func (h *MQTTHandler) SetDedupTTL(d time.Duration) {
	if d > 0 {
		h.dedupTTL = d
	}
}

// Handle is a rabbitmq.Handler.
func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	payload := m.Payload()

	// QoS1 → possibili redelivery: stesso payload, stessa risposta già inviata
	var dedupKey string
	if h.dedup != nil {
		sum := sha256.Sum256(payload)
		dedupKey = hex.EncodeToString(sum[:])
		if !h.dedup.Add(dedupKey, h.dedupTTL) {
			h.metrics.RecordDuplicate()
			h.log.Debug("duplicate request dropped", zap.String("topic", m.Topic()))
			return nil
		}
	}
	// senza raccomandazione consegnata il reinvio va elaborato
	release := func() {
		if h.dedup != nil {
			h.dedup.Remove(dedupKey)
		}
	}

	var req model.RecommendationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode request on %s: %w", m.Topic(), err)
	}
	if strings.TrimSpace(req.FieldID) == "" {
		req.FieldID = fieldFromTopic(m.Topic())
	}
	if req.FieldID == "" {
		return fmt.Errorf("request on %s: missing field id", m.Topic())
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	// l'errore è già nell'evento: si pubblica comunque
	evt, adviseErr := h.advisor.Advise(ctx, "mqtt", req)
	if adviseErr != nil {
		release()
	}

	body, err := json.Marshal(evt)
	if err != nil {
		release()
		return fmt.Errorf("encode event: %w", err)
	}
	topic := strings.ReplaceAll(h.topicTmpl, "{field}", req.FieldID)
	if err := h.publisher.PublishTo(topic, h.qos, false, body); err != nil {
		release()
		return err
	}
	h.log.Info("recommendation published",
		zap.String("topic", topic),
		zap.String("request_id", evt.RequestID),
		zap.String("error_kind", evt.ErrorKind))
	return nil
}

// fieldFromTopic estrae {field} da "advisory/request/{field}".
func fieldFromTopic(topic string) string {
	if !strings.HasPrefix(topic, RequestTopicPrefix) {
		return ""
	}
	field, _, _ := strings.Cut(strings.TrimPrefix(topic, RequestTopicPrefix), "/")
	return strings.TrimSpace(field)
}
