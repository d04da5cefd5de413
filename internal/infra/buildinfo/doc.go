// Package buildinfo exposes version information injected at link time:
//
//	go build -ldflags "-X github.com/yndnr/nodemesh-go/internal/infra/buildinfo.Version=v1.2.0 \
//	  -X github.com/yndnr/nodemesh-go/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Commit falls back to the VCS revision recorded by the Go toolchain.
package buildinfo
