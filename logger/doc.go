// Package logger provides structured logging for crossmatch using zerolog.
//
// Loggers are scoped by component (scheduler, store, walmart, ...) and carry
// run and stage identifiers as structured fields so that one pipeline run can
// be followed across concurrent stages.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("scheduler")
//	log.Info("stage finished", logger.Fields(logger.FieldStage, "gmfe", "batches", 12))
package logger
