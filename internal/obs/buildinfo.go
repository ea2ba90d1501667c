package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "assetdesk build information.",
		},
		[]string{"version", "commit"},
	)
)

// Build metadata, overridden with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
)

// InitBuildInfo registers build_info once and sets it to 1 for the running build.
func InitBuildInfo() {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(Version, Commit).Set(1)
}
