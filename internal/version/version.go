package version

import "fmt"

// Заполняются при сборке через -ldflags:
//
//	-X .../internal/version.version=v1.2.3
//	-X .../internal/version.commit=abcdef0
//	-X .../internal/version.buildDate=2026-08-31T00:00:00Z
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// BuildInfo — сведения о сборке сервиса.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Get возвращает информацию о текущей сборке.
func Get() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// String возвращает компактное однострочное представление для логов
// и health-ответов.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", b.Version, b.Commit, b.BuildDate)
}
