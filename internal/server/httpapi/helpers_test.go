package httpapi

import (
	"io"
	"log/slog"

	"github.com/viewtube/accounts/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}
