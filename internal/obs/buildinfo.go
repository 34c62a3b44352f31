package obs

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies a running binary.
type Build struct {
	Component string
	Version   string
	Commit    string
}

func (b Build) String() string {
	return b.Component + " " + b.Version + " (" + b.Commit + ")"
}

// ReadBuild returns the build of component. Version and commit fall back to
// the module version and VCS revision embedded by the go tool when the
// linker left them empty.
func ReadBuild(component, version, commit string) Build {
	b := Build{Component: component, Version: version, Commit: commit}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b.withDefaults()
	}
	if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	if b.Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				b.Commit = s.Value[:7]
			}
		}
	}
	return b.withDefaults()
}

func (b Build) withDefaults() Build {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	return b
}

var (
	buildGaugeOnce sync.Once
	buildGauge     = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharedledger_build_info",
			Help: "Always 1; labels identify the running binary.",
		},
		[]string{"component", "version", "commit"},
	)
)

// PublishBuild exports b on the default registry.
func PublishBuild(b Build) {
	buildGaugeOnce.Do(func() { prometheus.MustRegister(buildGauge) })
	buildGauge.WithLabelValues(b.Component, b.Version, b.Commit).Set(1)
}
