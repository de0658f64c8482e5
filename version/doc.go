// Package version reports the crossmatch build. Values are set with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/crossmatch/version.Version=1.4.0"
package version
