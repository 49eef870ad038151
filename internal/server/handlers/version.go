package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/forgeiq/forgeiq/internal/config"
)

var build = BuildInfo{Name: config.AppName, Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo sets the build metadata reported by /version. main calls it
// once with ldflags values.
func SetVersionInfo(version, commit, buildDate string) {
	build.Version = version
	build.Commit = commit
	build.BuildDate = buildDate
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	App          BuildInfo         `json:"app"`
	Go           string            `json:"go_version"`
	Platform     string            `json:"platform"`
	Dependencies map[string]string `json:"dependencies"`
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()
	writeJSON(w, VersionResponse{
		App:      build,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
	})
}
