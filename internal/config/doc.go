// Package config loads the server configuration from PAGESCAN_-prefixed
// environment variables and an optional config.yaml, applies defaults and
// validates the result before anything else starts.
package config
