package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"fileforge/internal/faults"
)

// DocumentConverter handles text-family documents. Plain text conversions
// (txt, md, html) run in-process; everything touching office or ebook
// formats shells out to pandoc or libreoffice.
type DocumentConverter struct {
	tempDir string
}

// NewDocumentConverter returns a document converter that stages external
// conversions under tempDir.
func NewDocumentConverter(tempDir string) *DocumentConverter {
	return &DocumentConverter{tempDir: tempDir}
}

func (c *DocumentConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress = ensureProgress(progress)

	if isTextFormat(req.SourceFormat) && isTextFormat(req.TargetFormat) {
		out, err := convertText(req.Data, req.SourceFormat, req.TargetFormat)
		if err != nil {
			return nil, err
		}
		progress(100)
		return out, nil
	}

	var (
		out []byte
		err error
	)
	if req.SourceFormat == "md" || req.TargetFormat == "md" {
		out, err = c.convertWithPandoc(ctx, req)
	} else {
		out, err = c.convertWithLibreOffice(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	progress(100)
	return out, nil
}

func isTextFormat(formatID string) bool {
	switch formatID {
	case "txt", "md", "html":
		return true
	}
	return false
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func convertText(data []byte, sourceFormat, targetFormat string) ([]byte, error) {
	text := string(data)

	switch {
	case sourceFormat == "md" && targetFormat == "html":
		html := `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body>` + markdownToHTML(text) + `</body></html>`
		return []byte(html), nil
	case sourceFormat == "html" && targetFormat == "txt":
		return []byte(htmlTagPattern.ReplaceAllString(text, "")), nil
	default:
		return data, nil
	}
}

var (
	mdH3     = regexp.MustCompile(`(?m)^### (.*)$`)
	mdH2     = regexp.MustCompile(`(?m)^## (.*)$`)
	mdH1     = regexp.MustCompile(`(?m)^# (.*)$`)
	mdBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic = regexp.MustCompile(`\*(.*?)\*`)
)

func markdownToHTML(md string) string {
	out := mdH3.ReplaceAllString(md, "<h3>$1</h3>")
	out = mdH2.ReplaceAllString(out, "<h2>$1</h2>")
	out = mdH1.ReplaceAllString(out, "<h1>$1</h1>")
	out = mdBold.ReplaceAllString(out, "<strong>$1</strong>")
	out = mdItalic.ReplaceAllString(out, "<em>$1</em>")
	return strings.ReplaceAll(out, "\n", "<br>")
}

func (c *DocumentConverter) convertWithPandoc(ctx context.Context, req Request) ([]byte, error) {
	workDir, cleanup, err := c.stageDir("pandoc-")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input."+req.SourceFormat)
	outputPath := filepath.Join(workDir, "output."+req.TargetFormat)
	if err := os.WriteFile(inputPath, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("stage pandoc input: %w", err)
	}

	cmd := exec.CommandContext(ctx, "pandoc", inputPath, "-o", outputPath) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "pandoc",
			fmt.Sprintf("%v: %s", err, strings.TrimSpace(string(output))), nil)
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "pandoc", "read output", err)
	}
	return out, nil
}

func (c *DocumentConverter) convertWithLibreOffice(ctx context.Context, req Request) ([]byte, error) {
	workDir, cleanup, err := c.stageDir("libreoffice-")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input."+req.SourceFormat)
	if err := os.WriteFile(inputPath, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("stage libreoffice input: %w", err)
	}

	cmd := exec.CommandContext(ctx, "libreoffice", //nolint:gosec
		"--headless",
		"--convert-to", req.TargetFormat,
		"--outdir", workDir,
		inputPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "libreoffice",
			fmt.Sprintf("%v: %s", err, strings.TrimSpace(string(output))), nil)
	}

	out, err := os.ReadFile(filepath.Join(workDir, "input."+req.TargetFormat))
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "libreoffice", "read output", err)
	}
	return out, nil
}

func (c *DocumentConverter) stageDir(prefix string) (string, func(), error) {
	base := c.tempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, fmt.Errorf("create temp base: %w", err)
	}
	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
