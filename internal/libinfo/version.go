/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo exposes the version of the library, e.g. for User-Agent header and metrics labels.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const libShortName = "go-crptapi"

const moduleName = "github.com/acronis/" + libShortName

// PrometheusLibVersionLabel is a name of the label with the library version.
const PrometheusLibVersionLabel = "go_crptapi_version"

// AddPrometheusLibVersionLabel returns a copy of labels with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLibVersionLabel] = GetLibVersion()
	return labelsCopy
}

// UserAgent returns the default User-Agent for outgoing requests, e.g. "go-crptapi/v1.0.0".
func UserAgent() string {
	return libShortName + "/" + GetLibVersion()
}

var libVersion string
var libVersionOnce sync.Once

// GetLibVersion returns the version of the library from the build info, or "v0.0.0" if it's unknown.
func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}

func initLibVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		libVersion = extractLibVersion(buildInfo, moduleName)
	}
	if libVersion == "" || libVersion == "(devel)" {
		libVersion = "v0.0.0"
	}
}

// extractLibVersion extracts the version of the given module from the build info.
// The module may be either the main one (e.g. when the demo binary is built) or a dependency
// in the form "moduleName" or "moduleName/vX".
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
	if re.MatchString(buildInfo.Main.Path) {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
