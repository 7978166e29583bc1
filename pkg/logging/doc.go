// Package logging builds the structured loggers used across apilab.
//
// Components accept a *slog.Logger in their constructor or through an option.
// When none is supplied they fall back to Nop so that library use stays quiet.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("api listening", "port", 8080)
//
// Open additionally attaches Config.File; records are then written to both
// the primary output and the file.
package logging
