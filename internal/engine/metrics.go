package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scenesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lizzy_write_scenes_total",
		Help: "Scenes processed by the write pipeline, by outcome.",
	},
	[]string{"outcome"},
)

const (
	outcomeGenerated = "generated"
	outcomeFailed    = "failed"
)
