// Package version хранит сведения о сборке, заданные через -ldflags
// (-X github.com/vladislavdragonenkov/storefront/internal/version.version=...).
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// Fields возвращает сведения о сборке для стартовой записи в лог.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "build_date": date}
}

// UserAgent — значение заголовка User-Agent для исходящих запросов клиента.
func UserAgent(component string) string {
	return fmt.Sprintf("storefront-%s/%s", component, version)
}
