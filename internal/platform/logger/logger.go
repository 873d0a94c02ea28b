package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stdout. The node name is attached
// so logs from cooperating state backends can be told apart.
func New(node string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	if node != "" {
		log = log.With("node", node)
	}
	return log
}
