package storage

import (
	"os"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("overpass")

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(logging.NOTICE, "")
	logging.SetBackend(leveled)
}
