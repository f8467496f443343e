package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "unitrack_sessions_started_total",
	Help: "Attendance sessions opened by teachers.",
})
