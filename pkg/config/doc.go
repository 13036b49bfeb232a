// Package config loads console configuration from CONSOLE_* environment
// variables, with an optional .env file for local development. LoadConfig
// validates the result; the platform URL is the only setting without a
// usable default.
package config
