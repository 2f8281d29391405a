package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/logger"
)

// Server is the read-only diagnostics HTTP surface: /healthz always
// reports ok once the process is serving, /brokerz dumps the current
// broker.Stats() snapshot as JSON. There is no mutating endpoint — this
// is observability only, never a control channel.
type Server struct {
	addr       string
	b          *broker.Broker
	saturation SaturationCounter
	log        logger.Logger

	srv *http.Server
}

// NewServer constructs a Server that will listen on addr once Run is
// called. An empty addr disables the server entirely.
func NewServer(addr string, b *broker.Broker, saturation SaturationCounter, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop{}
	}
	return &Server{addr: addr, b: b, saturation: saturation, log: log}
}

// Name implements lifecycle.Module.
func (s *Server) Name() string { return "diagnostics-http" }

// Init implements lifecycle.Module. Server has nothing to bind.
func (s *Server) Init(ctx context.Context, b *broker.Broker) error {
	return nil
}

// Run implements lifecycle.Module: serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) {
	if s.addr == "" {
		return
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/brokerz", s.handleBrokerz)

	s.srv = &http.Server{Addr: s.addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("diagnostics: http server failed", "error", err)
		}
	case <-ctx.Done():
		_ = s.srv.Close()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleBrokerz(w http.ResponseWriter, r *http.Request) {
	type slotView struct {
		Addr      string `json:"addr"`
		Mode      string `json:"mode"`
		Published uint64 `json:"published"`
		Dropped   uint64 `json:"dropped"`
		QueueLen  int    `json:"queue_len"`
	}

	stats := s.b.Stats()
	out := make([]slotView, 0, len(stats))
	for _, st := range stats {
		mode := "latest"
		if st.Mode == broker.ModeQueued {
			mode = "queued"
		}
		out = append(out, slotView{
			Addr:      st.Addr.String(),
			Mode:      mode,
			Published: st.Published,
			Dropped:   st.Dropped,
			QueueLen:  st.QueueLen,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"slots":            out,
		"saturation_trips": s.saturation.SaturationTrips(),
	})
}
