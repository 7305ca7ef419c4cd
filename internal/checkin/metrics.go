package checkin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Check-in attempts by outcome (accepted, rejected, error).",
	}, []string{"result"})

	tokensMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_tokens_minted_total",
		Help: "Ephemeral QR tokens minted.",
	})
)
