// Package ffmpeg provides FFmpeg binary detection and process wrapping.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zyp1690/nodecast-tv/internal/util"
)

// BinaryInfo describes the detected FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// BinaryDetector locates the FFmpeg binary and caches the result. Detection
// shells out to `ffmpeg -version`, so callers share one detector.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration

	// overridePath skips discovery entirely when set (from config).
	overridePath string
}

// NewBinaryDetector creates a detector. overridePath, when non-empty, is
// used verbatim instead of searching.
func NewBinaryDetector(overridePath string) *BinaryDetector {
	return &BinaryDetector{
		cacheTTL:     5 * time.Minute,
		overridePath: overridePath,
	}
}

// WithCacheTTL sets how long a detection result is reused.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// Detect finds FFmpeg and reports its version. Results are cached.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear drops the cached detection result.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	path := d.overridePath
	if path == "" {
		// Search order: NODECAST_FFMPEG_BINARY env var -> ./ffmpeg -> PATH.
		var err error
		path, err = util.FindBinary("ffmpeg", "NODECAST_FFMPEG_BINARY")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}

	info := &BinaryInfo{FFmpegPath: path}

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	full, major, minor := parseVersionOutput(string(out))
	if full == "" {
		return nil, fmt.Errorf("unrecognized ffmpeg version output")
	}
	info.Version = full
	info.MajorVersion = major
	info.MinorVersion = minor

	return info, nil
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// parseVersionOutput extracts the version string and numeric components
// from `ffmpeg -version` output. Distro builds append suffixes like
// "-0ubuntu1" or "n7.1" prefixes; only leading digits are parsed.
func parseVersionOutput(out string) (full string, major, minor int) {
	m := versionRe.FindStringSubmatch(out)
	if len(m) < 2 {
		return "", 0, 0
	}
	full = m[1]

	trimmed := strings.TrimPrefix(full, "n")
	parts := strings.SplitN(trimmed, ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(leadingDigits(parts[0]))
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(leadingDigits(parts[1]))
	}
	return full, major, minor
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
