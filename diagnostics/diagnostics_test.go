package diagnostics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/topics"
)

type fakeSaturation struct{ n uint64 }

func (f fakeSaturation) SaturationTrips() uint64 { return f.n }

func TestReporterRunReturnsOnContextCancel(t *testing.T) {
	b := broker.New(nil)
	_, err := broker.BindLatestPublisher(b, topics.SafetyEnable, false)
	require.NoError(t, err)

	r := NewReporter(b, fakeSaturation{n: 3}, "@every 10ms", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()
	<-done
}

func TestServerHealthzAndBrokerz(t *testing.T) {
	b := broker.New(nil)
	_, err := broker.BindLatestPublisher(b, topics.SafetyEnable, false)
	require.NoError(t, err)

	s := NewServer("127.0.0.1:0", b, fakeSaturation{n: 1}, nil)
	// exercise the handlers directly rather than binding a real listener
	// port, which would make the test flaky under parallel runs.
	req := func(path string) *http.Response {
		rec := httptest.NewRecorder()
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				s.handleHealthz(w, r)
			} else {
				s.handleBrokerz(w, r)
			}
		})
		r, _ := http.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(rec, r)
		return rec.Result()
	}

	healthResp := req("/healthz")
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)

	brokerResp := req("/brokerz")
	body, _ := io.ReadAll(brokerResp.Body)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, float64(1), parsed["saturation_trips"])
}
