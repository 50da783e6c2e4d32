/*
Package server exposes research runs over HTTP.

# Routes

	GET  /healthz          liveness probe
	GET  /runs             every run folder, newest first
	POST /runs             start a run over {"source_dir": "..."}; 202 with Location
	GET  /runs/{id}        run status and pipeline state
	GET  /runs/{id}/trace  the run's trace as NDJSON, optionally ?type=<event_type>

# Middleware Chain Order

 1. RequestIDMiddleware (first, so every log line and error body carries the ID)
 2. LoggingMiddleware (logs request start and completion)
 3. TimeoutMiddleware (request deadline; runs themselves are detached from it)
 4. Recoverer (catches panics)
 5. OTel instrumentation (OpenTelemetry)

Handlers attach fields to the completion log line through AddLogField and
AddError.
*/
package server
