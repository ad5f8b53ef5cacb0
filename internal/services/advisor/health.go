package advisor

import (
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

// BreakerReporter is implemented by upstream.Client.
type BreakerReporter interface {
	Name() string
	BreakerState() gobreaker.State
}

// HealthConfig lists the optional dependencies to report on; nil ones are
// left out of the status.
type HealthConfig struct {
	MQTT        mqtt.Client
	Recorder    *Recorder
	Providers   []BreakerReporter
	MinErrorAge time.Duration
}

type healthStatus struct {
	Status          string            `json:"status"`
	MQTTConnected   *bool             `json:"mqtt_connected,omitempty"`
	LastWriteErrorS *float64          `json:"last_write_error_age_sec,omitempty"`
	Breakers        map[string]string `json:"breakers,omitempty"`
}

func (c HealthConfig) check() (healthStatus, bool) {
	st := healthStatus{Status: "ok"}
	ok := true
	if c.MQTT != nil {
		connected := c.MQTT.IsConnectionOpen()
		st.MQTTConnected = &connected
		ok = ok && connected
	}
	if c.Recorder != nil {
		age := c.Recorder.LastErrorAge()
		secs := age.Seconds()
		st.LastWriteErrorS = &secs
		ok = ok && age > c.MinErrorAge
	}
	if len(c.Providers) > 0 {
		st.Breakers = make(map[string]string, len(c.Providers))
		for _, p := range c.Providers {
			state := p.BreakerState()
			st.Breakers[p.Name()] = state.String()
			// breaker aperto: si risponde con dati sintetici
			ok = ok && state != gobreaker.StateOpen
		}
	}
	if !ok {
		st.Status = "degraded"
	}
	return st, ok
}

// NewHealthHandler serves /healthz: always 200, status ok or degraded.
func NewHealthHandler(c HealthConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st, _ := c.check()
		writeJSON(w, http.StatusOK, st)
	})
}

// NewReadyHandler serves /readyz: 503 until MQTT is connected and the
// recorder has not failed for MinErrorAge. Open breakers do not count.
func NewReadyHandler(c HealthConfig) http.Handler {
	c.Providers = nil
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, ready := c.check()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Ready bool `json:"ready"`
		}{Ready: ready})
	})
}
