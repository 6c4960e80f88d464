// Package buildinfo exposes the version stamped into the binaries.
//
//	go build -ldflags "-X github.com/yndnr/pairlink-go/internal/infra/buildinfo.Version=v1.0.0 \
//	    -X github.com/yndnr/pairlink-go/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// When Commit is not stamped it falls back to the VCS revision the Go
// toolchain records in the binary.
package buildinfo
