package convert

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sort"
	"strings"

	"fileforge/internal/faults"
)

// ArchiveConverter repacks archives between ZIP, TAR, and gzipped TAR.
// Entries are held in memory, so maxFileBytes bounds each decompressed
// member to keep hostile archives from exhausting the process.
type ArchiveConverter struct {
	maxFileBytes int64
}

// NewArchiveConverter returns an archive converter with a per-entry
// decompression limit.
func NewArchiveConverter(maxFileBytes int64) *ArchiveConverter {
	return &ArchiveConverter{maxFileBytes: maxFileBytes}
}

type archiveEntry struct {
	name string
	data []byte
}

func (c *ArchiveConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress = ensureProgress(progress)

	entries, err := c.extract(req.Data, req.SourceFormat)
	if err != nil {
		return nil, err
	}
	progress(50)

	out, err := c.pack(entries, req.TargetFormat)
	if err != nil {
		return nil, err
	}
	progress(100)
	return out, nil
}

func (c *ArchiveConverter) extract(data []byte, sourceFormat string) ([]archiveEntry, error) {
	switch sourceFormat {
	case "zip":
		return c.extractZip(data)
	case "tar":
		return c.extractTar(bytes.NewReader(data))
	case "gz":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "read gzip", err)
		}
		defer gz.Close()
		return c.extractTar(gz)
	default:
		return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "extraction not supported for: "+sourceFormat, nil)
	}
}

func (c *ArchiveConverter) extractZip(data []byte) ([]archiveEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "read zip", err)
	}

	var entries []archiveEntry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if err := validateEntryName(file.Name); err != nil {
			return nil, err
		}
		rc, err := file.Open()
		if err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "open zip entry "+file.Name, err)
		}
		content, err := c.readLimited(rc, file.Name)
		rc.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, archiveEntry{name: file.Name, data: content})
	}
	return entries, nil
}

func (c *ArchiveConverter) extractTar(r io.Reader) ([]archiveEntry, error) {
	tr := tar.NewReader(r)
	var entries []archiveEntry
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "read tar", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := validateEntryName(header.Name); err != nil {
			return nil, err
		}
		content, err := c.readLimited(tr, header.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, archiveEntry{name: header.Name, data: content})
	}
	return entries, nil
}

func (c *ArchiveConverter) pack(entries []archiveEntry, targetFormat string) ([]byte, error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	switch targetFormat {
	case "zip":
		return packZip(entries)
	case "tar":
		var buf bytes.Buffer
		if err := packTar(&buf, entries); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "gz":
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if err := packTar(gz, entries); err != nil {
			return nil, err
		}
		if err := gz.Close(); err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "close gzip", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "unsupported archive format: "+targetFormat, nil)
	}
}

func packZip(entries []archiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		if err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "create zip entry "+entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "write zip entry "+entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "close zip", err)
	}
	return buf.Bytes(), nil
}

func packTar(w io.Writer, entries []archiveEntry) error {
	tw := tar.NewWriter(w)
	for _, entry := range entries {
		header := &tar.Header{
			Name: entry.name,
			Mode: 0o644,
			Size: int64(len(entry.data)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return faults.Wrap(faults.ErrConversion, "convert", "archive", "write tar header "+entry.name, err)
		}
		if _, err := tw.Write(entry.data); err != nil {
			return faults.Wrap(faults.ErrConversion, "convert", "archive", "write tar entry "+entry.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return faults.Wrap(faults.ErrConversion, "convert", "archive", "close tar", err)
	}
	return nil
}

func (c *ArchiveConverter) readLimited(r io.Reader, name string) ([]byte, error) {
	limited := io.LimitReader(r, c.maxFileBytes+1)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConversion, "convert", "archive", "read entry "+name, err)
	}
	if int64(len(content)) > c.maxFileBytes {
		return nil, faults.Wrap(faults.ErrValidation, "convert", "archive", "entry too large: "+name, nil)
	}
	return content, nil
}

func validateEntryName(name string) error {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return faults.Wrap(faults.ErrValidation, "convert", "archive", "unsafe entry name: "+name, nil)
	}
	return nil
}
