// Package handler implements the HTTP surface of a peerscan replica.
//
// Every replica serves its own identity and exposes the discovery
// operations over JSON:
//
//	GET /identity         this replica's identity document
//	GET /health           liveness with hostname, ip and unix timestamp
//	GET /peers            addresses with the service port open
//	GET /peers/identity   one identity (or sentinel) per open address
//	GET /peers/service    identities whose hostname has ?prefix= (default: own service)
//	GET /cluster          found vs expected replicas
//	GET /runs             recent scan-run summaries
//	GET /metrics          Prometheus exposition
//
// Discovery endpoints run a full rescan on every request. Configuration
// errors map to 400; other failures map to 500. Error bodies are
// {error, details}.
package handler
