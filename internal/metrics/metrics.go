// Package metrics exposes Prometheus metrics for the daemon's sync core.
package metrics

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message sources for MessagesApplied.
const (
	SourceSnapshot = "snapshot"
	SourceHistory  = "history"
	SourceLive     = "live"
)

var (
	once sync.Once

	// Counters
	MessagesApplied   *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	MessagesSent      prometheus.Counter
	ReconnectAttempts prometheus.Counter
	FetchFailures     prometheus.Counter
	ForcedLogouts     prometheus.Counter

	// Histograms (seconds)
	FetchDuration   prometheus.Observer
	ConnectDuration prometheus.Observer

	// Gauges
	ChannelJoined prometheus.Gauge // 1=joined,0=otherwise
	TimelineSize  prometheus.Gauge

	busDropped atomic.Pointer[func() uint64]
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesApplied = promauto.NewCounterVec(prometheus.CounterOpts{Name: "vibee_messages_applied_total", Help: "Messages placed into the timeline"}, []string{"source"})
		MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "vibee_messages_dropped_total", Help: "Duplicate or invalid messages dropped by the timeline"}, []string{"source"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "vibee_messages_sent_total", Help: "Messages written to the live channel"})
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "vibee_reconnect_attempts_total", Help: "Live channel reconnect attempts"})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "vibee_history_fetch_failures_total", Help: "History page fetches that failed"})
		ForcedLogouts = promauto.NewCounter(prometheus.CounterOpts{Name: "vibee_forced_logouts_total", Help: "Credential invalidations triggered by a collaborator rejection"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vibee_history_fetch_duration_seconds", Help: "History page fetch duration seconds", Buckets: prometheus.DefBuckets})
		ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vibee_channel_connect_duration_seconds", Help: "Time from dial to room join seconds", Buckets: prometheus.DefBuckets})
		ChannelJoined = promauto.NewGauge(prometheus.GaugeOpts{Name: "vibee_channel_joined", Help: "Live channel joined=1 otherwise=0"})
		TimelineSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "vibee_timeline_messages", Help: "Messages held in the active room timeline"})
		promauto.NewCounterFunc(prometheus.CounterOpts{Name: "vibee_bus_events_dropped_total", Help: "Event deliveries skipped because a subscriber was full"}, func() float64 {
			if fn := busDropped.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		})
	})
}

// RecordApply counts the outcome of one timeline mutation.
func RecordApply(source string, placed, dropped int) {
	if MessagesApplied == nil {
		return
	}
	if placed > 0 {
		MessagesApplied.WithLabelValues(source).Add(float64(placed))
	}
	if dropped > 0 {
		MessagesDropped.WithLabelValues(source).Add(float64(dropped))
	}
}

// SetJoined sets the joined gauge.
func SetJoined(joined bool) {
	if ChannelJoined == nil {
		return
	}
	if joined {
		ChannelJoined.Set(1)
	} else {
		ChannelJoined.Set(0)
	}
}

// SetTimelineSize records the active timeline length.
func SetTimelineSize(n int) {
	if TimelineSize != nil {
		TimelineSize.Set(float64(n))
	}
}

// TrackBusDrops makes fn the source of the dropped-events counter.
func TrackBusDrops(fn func() uint64) {
	busDropped.Store(&fn)
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Since observes the seconds elapsed from start in obs if non-nil.
func Since(obs prometheus.Observer, start time.Time) {
	if obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
}

// Serve starts an HTTP listener exposing /metrics on addr. The returned
// server is already accepting; callers shut it down with Shutdown.
func Serve(addr string) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return srv, ln.Addr(), nil
}
