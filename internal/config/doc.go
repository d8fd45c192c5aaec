// Package config provides centralized configuration management for the
// margin watch service. It handles loading configuration from multiple
// sources, validation, and logger construction.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of
// precedence:
//
//	1. Configuration file (YAML, path from MARGINWATCH_CONFIG or ./config.yaml)
//	2. Environment variables
//	3. Default values
//
// # Environment Variables
//
// All environment variables follow the pattern MARGINWATCH_* for
// namespacing:
//
//	MARGINWATCH_SERVER_PORT=8080
//	MARGINWATCH_LOGGING_LEVEL=info
//	MARGINWATCH_PATHS_DATA_DIR=data
//	MARGINWATCH_DETECTION_ABS_THRESHOLD=5000000
package config
