package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologLogger delegates to github.com/rs/zerolog, grounded on
// intelligencedev-manifold's pervasive zerolog usage (cmd/agentd,
// cmd/agent). Hosts that already run zerolog construct one instead of
// ClueLogger via telemetry.NewZerologLogger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger { return ZerologLogger{log: l} }

func (z ZerologLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	z.log.Debug().Fields(kvSliceToMap(keyvals)).Msg(msg)
}

func (z ZerologLogger) Info(_ context.Context, msg string, keyvals ...any) {
	z.log.Info().Fields(kvSliceToMap(keyvals)).Msg(msg)
}

func (z ZerologLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	z.log.Warn().Fields(kvSliceToMap(keyvals)).Msg(msg)
}

func (z ZerologLogger) Error(_ context.Context, msg string, keyvals ...any) {
	z.log.Error().Fields(kvSliceToMap(keyvals)).Msg(msg)
}

func kvSliceToMap(keyvals []any) map[string]any {
	m := make(map[string]any, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		m[k] = v
	}
	return m
}
