// Package app wires the margin watch service together: configuration,
// logging, the outlier service, the chi router with its middleware
// chain, and graceful HTTP server lifecycle.
package app
