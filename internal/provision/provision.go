// Package provision answers whether a runnable proxy-core binary exists for a
// core kind and where it lives. Downloading/updating binaries is a separate
// service; the pipeline only consumes this contract and treats "unavailable"
// as a first-class, non-fatal condition.
package provision

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/subgeo/subgeo/internal/model"
)

// Provider is the binary-provisioning contract.
type Provider interface {
	// Ensure reports whether a runnable binary for kind is present.
	Ensure(kind model.CoreKind) bool
	// Path is the well-known filesystem path for kind's binary.
	Path(kind model.CoreKind) string
}

// Dir serves binaries out of one directory using well-known file names.
type Dir struct {
	Root string
	Log  *logrus.Logger
}

func binaryName(kind model.CoreKind) string {
	switch kind {
	case model.CoreClash:
		return "clash-meta"
	case model.CoreSingBox:
		return "sing-box"
	default:
		return string(kind)
	}
}

func (d Dir) Path(kind model.CoreKind) string {
	return filepath.Join(d.Root, binaryName(kind))
}

// Ensure checks that the binary exists and is non-empty, and marks it
// executable. A chmod failure is logged but does not make the binary
// unavailable; the supervisor will surface the real failure on start.
func (d Dir) Ensure(kind model.CoreKind) bool {
	path := d.Path(kind)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	if err := os.Chmod(path, 0o755); err != nil && d.Log != nil {
		d.Log.WithError(err).WithField("path", path).Warn("无法为核心二进制设置可执行权限")
	}
	return true
}

// Fixed maps each core kind to an explicit binary path. Useful for tests and
// for operators who manage binaries themselves.
type Fixed map[model.CoreKind]string

func (f Fixed) Path(kind model.CoreKind) string { return f[kind] }

func (f Fixed) Ensure(kind model.CoreKind) bool {
	path, ok := f[kind]
	if !ok || path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
