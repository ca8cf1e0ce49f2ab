package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// build_info is a constant 1 labelled with the running binary and version.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "tallyboard build information.",
		},
		[]string{"binary", "version"},
	)
)

// InitBuildInfo registers build_info once and sets it for the given binary.
func InitBuildInfo(binary, version string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(binary, version).Set(1)
}
