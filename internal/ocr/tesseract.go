// Package ocr extracts text from chat images by shelling out to Tesseract.
// The binary is treated as an opaque compute step: callers bound each call
// with a context deadline and treat any failure as terminal for that image.
package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var supportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/bmp",
	"image/webp",
}

type Config struct {
	// TesseractPath is the path to the tesseract executable.
	TesseractPath string
	// DataPath is the path to the tessdata directory (optional).
	DataPath string
	// Languages passed to tesseract, e.g. "ukr+rus+eng".
	Languages string
}

func DefaultConfig() *Config {
	return &Config{
		TesseractPath: "tesseract",
		Languages:     "ukr+rus+eng",
	}
}

type Extractor struct {
	config *Config
}

func NewExtractor(config *Config) *Extractor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Extractor{config: config}
}

// ExtractText runs OCR over image bytes. An image that decodes fine but
// contains no text yields ("", nil); a decode failure or timeout yields an
// error. The context deadline covers the whole tesseract invocation.
func (e *Extractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "ocr_*.png")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	tmpFile.Close()

	if err := os.WriteFile(tmpPath, image, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}

	outPath := strings.TrimSuffix(tmpPath, filepath.Ext(tmpPath))

	args := []string{tmpPath, outPath}
	if e.config.Languages != "" {
		args = append(args, "-l", e.config.Languages)
	}
	if e.config.DataPath != "" {
		args = append(args, "--tessdata-dir", e.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, e.config.TesseractPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "tesseract timed out")
		}
		slog.Warn("tesseract command failed", "error", err, "stderr", stderr.String())
		return "", errors.Wrap(err, "tesseract command failed")
	}

	txtPath := outPath + ".txt"
	defer os.Remove(txtPath)

	out, err := os.ReadFile(txtPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to read OCR output")
	}

	return strings.TrimSpace(string(out)), nil
}

// IsAvailable checks that the tesseract binary can be invoked.
func (e *Extractor) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, e.config.TesseractPath, "--version")
	return cmd.Run() == nil
}

func (e *Extractor) IsSupported(mimeType string) bool {
	for _, supported := range supportedMimeTypes {
		if strings.EqualFold(mimeType, supported) {
			return true
		}
	}
	return false
}
