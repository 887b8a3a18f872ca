package common

import (
	"os"
	"path/filepath"
)

// CacheDir is where stemdeck keeps generated files, such as separated stems.
func CacheDir() string {
	return filepath.Join(cacheHome(), "stemdeck")
}

// cacheHome honors XDG_CACHE_HOME on every platform, then falls back to the
// OS cache dir and finally to the working directory.
func cacheHome() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); filepath.IsAbs(dir) {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return "."
}

// SeparationDir is the default output root for separated stems.
func SeparationDir() string {
	return filepath.Join(CacheDir(), "separated")
}

// BundleDir is where stem archives are unpacked before playing.
func BundleDir() string {
	return filepath.Join(CacheDir(), "bundles")
}
