// Package http implements HTTP request handlers for the margin watch
// service. It provides a thin layer between HTTP transport and the
// detection engine, keeping handlers focused solely on HTTP concerns.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - convert domain errors to HTTP responses
//	4. No business logic - all logic belongs in the engine and services
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → OutlierService → Engine
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Parameter validation is done with go-playground/validator before the
// service is invoked, so parameter-domain errors fail fast without any
// row processing.
package http
