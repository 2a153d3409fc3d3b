package bus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OpsServer is the plain-HTTP operations surface: liveness and the
// Prometheus scrape endpoint. Nothing else is exposed here.
type OpsServer struct {
	srv *http.Server
	log *zap.SugaredLogger
}

// NewOpsServer builds the ops router. A nil gatherer scrapes the default
// registry.
func NewOpsServer(port int, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *OpsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return &OpsServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start serves until Shutdown. A closed server returns nil.
func (o *OpsServer) Start() error {
	o.log.Infow("ops endpoint listening", "addr", o.srv.Addr)
	if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections until ctx expires.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	return o.srv.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
