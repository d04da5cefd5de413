// Package tlsroots manages the certificates that secure node channels.
//
//   - Pool: trusted cluster CAs loaded from PEM files or directories
//   - Watcher: node key pair and CA bundle, reloaded when the files change
//   - GenerateSelfSigned: ephemeral certificates for development clusters
package tlsroots
