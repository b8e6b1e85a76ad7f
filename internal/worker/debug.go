package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"scribeit/internal/logger"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("SCRIBEIT_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		logger.Info(context.Background(), fmt.Sprintf(format, args...), logger.Fields{"component": "worker"})
	}
}
