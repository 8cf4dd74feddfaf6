// Package config loads the gateway configuration. Values come from an
// optional YAML file, then a .env file, then GATEWAY_* environment
// variables, each layer overriding the previous one.
package config
