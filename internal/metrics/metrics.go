// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castbridge_token_refresh_total",
		Help: "Token refresh attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	authRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "castbridge_auth_retry_total",
		Help: "Total number of 401-driven request retries",
	})

	cachePolicyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castbridge_cache_policy_total",
		Help: "Requests classified by the cache policy interceptor",
	}, []string{"class"}) // class=write|auth|image|generic

	progressFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castbridge_progress_flush_total",
		Help: "Progress reports pushed to the server by outcome",
	}, []string{"outcome"}) // outcome=success|failure|skipped

	castSessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "castbridge_cast_session_events_total",
		Help: "Cast session lifecycle events",
	}, []string{"event"})

	playbackActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "castbridge_playback_active",
		Help: "Active playback sessions by sink",
	}, []string{"sink"}) // sink=local|remote
)

// RecordTokenRefresh counts a refresh attempt.
func RecordTokenRefresh(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordAuthRetry counts one 401-driven retry.
func RecordAuthRetry() {
	authRetryTotal.Inc()
}

// RecordCacheClass counts a cache policy classification.
func RecordCacheClass(class string) {
	cachePolicyTotal.WithLabelValues(class).Inc()
}

// RecordProgressFlush counts a progress push.
func RecordProgressFlush(outcome string) {
	progressFlushTotal.WithLabelValues(outcome).Inc()
}

// RecordCastEvent counts a cast lifecycle event.
func RecordCastEvent(event string) {
	castSessionEvents.WithLabelValues(event).Inc()
}

// SetPlaybackActive flags whether a sink is currently driving playback.
func SetPlaybackActive(sink string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	playbackActive.WithLabelValues(sink).Set(v)
}
