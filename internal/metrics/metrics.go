package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors for the session registry and the login exchange. Registered on
// the default registerer; the promhttp endpoint is optional and off by
// default (empty metrics_addr).
var (
	// AuthorizedUsers tracks live user sessions.
	AuthorizedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wrauth",
		Name:      "authorized_users",
		Help:      "Number of live user sessions in the registry.",
	})

	// AuthorizedServers tracks live node sessions.
	AuthorizedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wrauth",
		Name:      "authorized_servers",
		Help:      "Number of live game-server sessions in the registry.",
	})

	// LoginResults counts ServerList exchanges by outcome
	// (success, wrong_user, wrong_pw, banned, already_logged_in, invalid_input, new_nickname).
	LoginResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wrauth",
		Name:      "login_results_total",
		Help:      "ServerList login exchanges by outcome.",
	}, []string{"outcome"})

	// NodeAuthResults counts GameServerAuth exchanges by outcome.
	NodeAuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wrauth",
		Name:      "node_auth_results_total",
		Help:      "GameServerAuth exchanges by outcome.",
	}, []string{"outcome"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
