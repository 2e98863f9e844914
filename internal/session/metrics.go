package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeStarted        = "started"
	outcomeCompleted      = "completed"
	outcomeCompletedLocal = "completed_local"
	outcomeAbandoned      = "abandoned"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mockinterview",
		Name:      "sessions_total",
		Help:      "Interview sessions by outcome",
	}, []string{"outcome"})

	answersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mockinterview",
		Name:      "answers_total",
		Help:      "Answers evaluated and committed",
	})
)
