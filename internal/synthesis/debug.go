package synthesis

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = strings.EqualFold(os.Getenv("DOCSYNTH_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf(format, args...)
	}
}
