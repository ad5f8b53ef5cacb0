package advisor

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/cache"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

type fakeClient struct {
	mqtt.Client
	connected bool
}

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishTo(topic string, qos byte, _ bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, payload: payload})
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func requestMessage(t *testing.T, topic string, req model.RecommendationRequest) fakeMessage {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return fakeMessage{topic: topic, payload: raw}
}

func decodeEvent(t *testing.T, p published) model.RecommendationEvent {
	t.Helper()
	var evt model.RecommendationEvent
	require.NoError(t, json.Unmarshal(p.payload, &evt))
	return evt
}

func TestMQTTHandler_PublishesRecommendation(t *testing.T) {
	pub := &fakePublisher{}
	h := NewMQTTHandler(newTestAdvisor(&fakeRecommender{rec: urgentRec()}, &eventLog{}), pub, cache.NewMemory(100), nil, nil)

	require.NoError(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/field_1", sampleRequest())))

	msgs := pub.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "advisory/recommendation/field_1", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	evt := decodeEvent(t, msgs[0])
	require.NotNil(t, evt.Recommendation)
	assert.Equal(t, 1200.0, evt.Recommendation.WaterAmountLiters)
}

func TestMQTTHandler_DropsRedelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	svc := &fakeRecommender{rec: urgentRec()}
	pub := &fakePublisher{}
	h := NewMQTTHandler(newTestAdvisor(svc, &eventLog{}), pub, cache.NewMemory(100), nil, m)

	msg := requestMessage(t, "advisory/request/field_1", sampleRequest())
	require.NoError(t, h.Handle(RequestTopicFilter, msg))
	require.NoError(t, h.Handle(RequestTopicFilter, msg))

	assert.Equal(t, 1, svc.calls())
	assert.Len(t, pub.sent(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicatesDroppedTotal))

	// payload diverso: nuova richiesta
	other := sampleRequest()
	other.FieldSizeHectares = 2
	require.NoError(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/field_1", other)))
	assert.Equal(t, 2, svc.calls())
}

func TestMQTTHandler_ResendAfterFailureIsProcessed(t *testing.T) {
	svc := &fakeRecommender{err: &apperr.RateLimitError{RetryAfter: 5 * time.Second}}
	pub := &fakePublisher{}
	h := NewMQTTHandler(newTestAdvisor(svc, &eventLog{}), pub, cache.NewMemory(100), nil, nil)

	msg := requestMessage(t, "advisory/request/field_1", sampleRequest())
	require.NoError(t, h.Handle(RequestTopicFilter, msg))
	require.Len(t, pub.sent(), 1)
	assert.Equal(t, apperr.KindRateLimited, decodeEvent(t, pub.sent()[0]).ErrorKind)

	// finestra scaduta: il richiedente reinvia lo stesso payload
	svc.mu.Lock()
	svc.err = nil
	svc.mu.Unlock()
	require.NoError(t, h.Handle(RequestTopicFilter, msg))
	assert.Equal(t, 2, svc.calls())
	msgs := pub.sent()
	require.Len(t, msgs, 2)
	evt := decodeEvent(t, msgs[1])
	assert.Empty(t, evt.ErrorKind)
	require.NotNil(t, evt.Recommendation)

	// una volta risposto, il reinvio è un duplicato
	require.NoError(t, h.Handle(RequestTopicFilter, msg))
	assert.Equal(t, 2, svc.calls())
}

func TestMQTTHandler_PublishFailureReleasesDedup(t *testing.T) {
	svc := &fakeRecommender{rec: urgentRec()}
	pub := &fakePublisher{err: errors.New("broker gone")}
	h := NewMQTTHandler(newTestAdvisor(svc, &eventLog{}), pub, cache.NewMemory(100), nil, nil)

	msg := requestMessage(t, "advisory/request/field_1", sampleRequest())
	require.Error(t, h.Handle(RequestTopicFilter, msg))

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	require.NoError(t, h.Handle(RequestTopicFilter, msg))
	assert.Equal(t, 2, svc.calls())
	assert.Len(t, pub.sent(), 1)
}

func TestMQTTHandler_FieldFromTopic(t *testing.T) {
	pub := &fakePublisher{}
	h := NewMQTTHandler(newTestAdvisor(&fakeRecommender{rec: urgentRec()}, &eventLog{}), pub, nil, nil, nil)
	req := sampleRequest()
	req.FieldID = ""

	require.NoError(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/north-plot", req)))
	msgs := pub.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "advisory/recommendation/north-plot", msgs[0].topic)
	assert.Equal(t, "north-plot", decodeEvent(t, msgs[0]).FieldID)

	err := h.Handle(RequestTopicFilter, requestMessage(t, "other/topic", req))
	require.Error(t, err)
	assert.Len(t, pub.sent(), 1)
}

func TestMQTTHandler_PublishesFailures(t *testing.T) {
	pub := &fakePublisher{}
	svc := &fakeRecommender{err: &apperr.RateLimitError{RetryAfter: 12 * time.Second}}
	h := NewMQTTHandler(newTestAdvisor(svc, &eventLog{}), pub, nil, nil, nil)

	require.NoError(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/field_1", sampleRequest())))
	msgs := pub.sent()
	require.Len(t, msgs, 1)
	evt := decodeEvent(t, msgs[0])
	assert.Nil(t, evt.Recommendation)
	assert.Equal(t, apperr.KindRateLimited, evt.ErrorKind)
	assert.Equal(t, 12.0, evt.RetryAfterSec)
}

func TestMQTTHandler_BadPayload(t *testing.T) {
	pub := &fakePublisher{}
	svc := &fakeRecommender{rec: urgentRec()}
	h := NewMQTTHandler(newTestAdvisor(svc, &eventLog{}), pub, nil, nil, nil)

	err := h.Handle(RequestTopicFilter, fakeMessage{topic: "advisory/request/field_1", payload: []byte("{not json")})
	require.Error(t, err)
	assert.Zero(t, svc.calls())
	assert.Empty(t, pub.sent())
}

func TestMQTTHandler_CustomTopicAndPublishError(t *testing.T) {
	pub := &fakePublisher{}
	h := NewMQTTHandler(newTestAdvisor(&fakeRecommender{rec: urgentRec()}, &eventLog{}), pub, nil, nil, nil)
	h.SetResultTopicTemplate("farm/{field}/advice")

	require.NoError(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/f9", sampleRequest())))
	assert.Equal(t, "farm/field_1/advice", pub.sent()[0].topic)

	pub.err = errors.New("broker gone")
	require.ErrorContains(t, h.Handle(RequestTopicFilter, requestMessage(t, "advisory/request/f9", sampleRequest())), "broker gone")
}
