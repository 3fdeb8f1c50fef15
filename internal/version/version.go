// Package version описывает сборку агента: версию из -ldflags, а при их
// отсутствии сведения VCS, которые go build кладёт в бинарник.
package version

import (
	"fmt"
	"runtime/debug"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = unknown
	date    = unknown
)

var readBuildInfo = debug.ReadBuildInfo

// Build: сведения о сборке.
type Build struct {
	Version  string
	Commit   string
	Date     string
	Modified bool
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	info, ok := readBuildInfo()
	if !ok {
		info = nil
	}
	return resolve(Build{Version: version, Commit: commit, Date: date}, info)
}

// resolve дополняет значения из -ldflags данными VCS; явно заданные значения
// не перезаписываются.
func resolve(b Build, info *debug.BuildInfo) Build {
	if info == nil {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == unknown {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == unknown {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit возвращает первые 7 символов ревизии.
func (b Build) ShortCommit() string {
	if b.Commit != unknown && len(b.Commit) > 7 {
		return b.Commit[:7]
	}
	return b.Commit
}

func (b Build) String() string {
	s := fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
	if b.Modified {
		s += " modified"
	}
	return s
}

// UserAgent отправляется с каждым запросом к удалённой корзине.
func (b Build) UserAgent() string {
	ua := "storefront-agent/" + b.Version
	if b.Commit != unknown {
		ua += " (" + b.ShortCommit() + ")"
	}
	return ua
}

// String описывает текущую сборку для логов.
func String() string { return Current().String() }

// UserAgent возвращает User-Agent текущей сборки.
func UserAgent() string { return Current().UserAgent() }
