// Package api implements the REST API server.
//
// # Routes
//
// The structured API answers with conventional status codes:
//
//	GET/POST            /connections
//	POST                /connections/reload
//	GET/PUT/PATCH/DELETE /connections/{uuid|id}   (?extended, ?legacy)
//	GET/PUT             /accessPoints             (PUT requests a scan)
//	GET/POST/DELETE     /interfaces
//	GET/PUT/DELETE      /interfaces/{name}
//	GET                 /interfaces/{name}/stats
//	GET                 /status
//	GET                 /metrics
//	GET                 /health, /healthz, /readyz
//
// The /networking routes serve the first generation API. They always answer
// 200 and report the outcome in the {SDCERR, InfoMsg} envelope.
//
// Both families render the same [result.Result]; only the serialization
// differs.
package api
