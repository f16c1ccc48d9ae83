// Package log provides structured JSON logging for coupe-sentinel, wrapping
// zerolog with component/stack/function-tagged child loggers.
//
// Call Init once at startup with the desired level and output format, then
// derive component loggers with WithComponent and friends:
//
//	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
//	reaperLog := log.WithComponent("reaper")
//	reaperLog.Info().Str("function_name", name).Msg("session expired")
package log
