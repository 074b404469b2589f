package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractRecognizer shells out to the tesseract binary.
type TesseractRecognizer struct {
	path string
	run  func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// NewTesseractRecognizer uses the binary at path, or "tesseract" from PATH.
func NewTesseractRecognizer(path string) *TesseractRecognizer {
	if path == "" {
		path = "tesseract"
	}
	return &TesseractRecognizer{path: path, run: runCommand}
}

// RecognizeText implements Recognizer. PDF pages are rejected; tesseract
// only reads raster images.
func (t *TesseractRecognizer) RecognizeText(ctx context.Context, page Page, language string, mode Mode) (string, error) {
	if page.IsPDF() {
		return "", fmt.Errorf("RecognizeText: tesseract cannot read %s: %w", page.MIMEType, ErrUnsupportedFormat)
	}
	if len(page.Data) == 0 {
		return "", errors.New("RecognizeText: empty page")
	}
	language, mode = normalizeOptions(language, mode)

	args := []string{"stdin", "stdout", "-l", language, "--psm", strconv.Itoa(int(mode))}
	out, err := t.run(ctx, t.path, args, page.Data)
	if err != nil {
		return "", fmt.Errorf("RecognizeText: run %s: %w", t.path, err)
	}
	return strings.TrimRight(string(out), " \n\f"), nil
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
