// internal/browser/artifacts.go
package browser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phquery/internal/config"
)

// artifactStore writes what a failed or finished Browse run leaves behind:
// screenshots, page sources and console logs, one file per session.
type artifactStore struct {
	cfg    config.ArtifactsConfig
	logger *zap.Logger
}

var nameReplacer = strings.NewReplacer(`\`, "_", "/", "_", " ", "_", string(filepath.Separator), "_")

// artifactName turns a run name into a file name stem.
func artifactName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "browse"
	}
	return nameReplacer.Replace(name)
}

// captureFailures stores a screenshot of every session as failure-<name>-<i>.png.
func (a *artifactStore) captureFailures(ctx context.Context, name string, sessions []*Session) []string {
	if a.cfg.ScreenshotsDir == "" {
		return nil
	}
	var written []string
	for i, s := range sessions {
		png, err := s.driver.Screenshot(ctx)
		if err != nil {
			a.logger.Warn("Failed to capture failure screenshot.", zap.String("session_id", s.ID()), zap.Error(err))
			continue
		}
		file := fmt.Sprintf("failure-%s-%d.png", name, i)
		if path, ok := a.write(a.cfg.ScreenshotsDir, file, png); ok {
			written = append(written, path)
		}
	}
	return written
}

// storeSources stores the page source of every session as <name>-<i>.txt.
func (a *artifactStore) storeSources(ctx context.Context, name string, sessions []*Session) []string {
	if a.cfg.SourceDir == "" {
		return nil
	}
	var written []string
	for i, s := range sessions {
		src, err := s.driver.Source(ctx)
		if err != nil {
			a.logger.Warn("Failed to read page source.", zap.String("session_id", s.ID()), zap.Error(err))
			continue
		}
		if path, ok := a.write(a.cfg.SourceDir, fmt.Sprintf("%s-%d.txt", name, i), []byte(src)); ok {
			written = append(written, path)
		}
	}
	return written
}

// storeConsoleLogs stores the console output of every session that logged
// anything as <name>-<i>.log, one JSON object per line.
func (a *artifactStore) storeConsoleLogs(name string, sessions []*Session) []string {
	if a.cfg.ConsoleDir == "" {
		return nil
	}
	var written []string
	for i, s := range sessions {
		msgs := s.driver.ConsoleMessages()
		if len(msgs) == 0 {
			continue
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, m := range msgs {
			if err := enc.Encode(m); err != nil {
				a.logger.Warn("Failed to encode console message.", zap.Error(err))
			}
		}
		if path, ok := a.write(a.cfg.ConsoleDir, fmt.Sprintf("%s-%d.log", name, i), buf.Bytes()); ok {
			written = append(written, path)
		}
	}
	return written
}

func (a *artifactStore) write(dir, file string, data []byte) (string, bool) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Error("Failed to create artifact directory.", zap.String("dir", dir), zap.Error(err))
		return "", false
	}
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		a.logger.Error("Failed to write artifact.", zap.String("path", path), zap.Error(err))
		return "", false
	}
	a.logger.Info("Stored artifact.", zap.String("path", path))
	return path, true
}
