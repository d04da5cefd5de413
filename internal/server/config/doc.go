// Package config defines the nodemesh-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking for logs
//   - convert.go: conversion into component configurations
//
// Configuration is loaded by internal/infra/confloader from a YAML file and
// NODEMESH_ environment variables.
package config
