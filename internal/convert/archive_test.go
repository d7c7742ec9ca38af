package convert

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"

	"fileforge/internal/faults"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		out[header.Name] = string(content)
	}
	return out
}

func TestZipToTar(t *testing.T) {
	conv := NewArchiveConverter(1 << 20)
	input := buildZip(t, map[string]string{
		"a.txt":     "alpha",
		"dir/b.txt": "beta",
	})

	out, err := conv.Convert(context.Background(), Request{
		Data:         input,
		SourceFormat: "zip",
		TargetFormat: "tar",
	}, nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	files := readTar(t, bytes.NewReader(out))
	if files["a.txt"] != "alpha" || files["dir/b.txt"] != "beta" {
		t.Fatalf("unexpected tar contents: %+v", files)
	}
}

func TestZipToGzippedTar(t *testing.T) {
	conv := NewArchiveConverter(1 << 20)
	input := buildZip(t, map[string]string{"a.txt": "alpha"})

	out, err := conv.Convert(context.Background(), Request{
		Data:         input,
		SourceFormat: "zip",
		TargetFormat: "gz",
	}, nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()

	files := readTar(t, gz)
	if files["a.txt"] != "alpha" {
		t.Fatalf("unexpected contents: %+v", files)
	}
}

func TestTarToZipRoundTrip(t *testing.T) {
	conv := NewArchiveConverter(1 << 20)
	zipInput := buildZip(t, map[string]string{"a.txt": "alpha"})

	tarOut, err := conv.Convert(context.Background(), Request{
		Data:         zipInput,
		SourceFormat: "zip",
		TargetFormat: "tar",
	}, nil)
	if err != nil {
		t.Fatalf("zip->tar: %v", err)
	}

	zipOut, err := conv.Convert(context.Background(), Request{
		Data:         tarOut,
		SourceFormat: "tar",
		TargetFormat: "zip",
	}, nil)
	if err != nil {
		t.Fatalf("tar->zip: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(zipOut), int64(len(zipOut)))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "a.txt" {
		t.Fatalf("unexpected zip contents: %+v", reader.File)
	}
}

func TestArchiveEntrySizeLimit(t *testing.T) {
	conv := NewArchiveConverter(4)
	input := buildZip(t, map[string]string{"big.txt": "exceeds the limit"})

	_, err := conv.Convert(context.Background(), Request{
		Data:         input,
		SourceFormat: "zip",
		TargetFormat: "tar",
	}, nil)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArchiveRejectsUnsafeEntryNames(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "../evil", Mode: 0o644, Size: 1}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write([]byte("x")); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}

	conv := NewArchiveConverter(1 << 20)
	_, err := conv.Convert(context.Background(), Request{
		Data:         buf.Bytes(),
		SourceFormat: "tar",
		TargetFormat: "zip",
	}, nil)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnsupportedArchiveSource(t *testing.T) {
	conv := NewArchiveConverter(1 << 20)
	_, err := conv.Convert(context.Background(), Request{
		Data:         []byte("rar data"),
		SourceFormat: "rar",
		TargetFormat: "zip",
	}, nil)
	if !errors.Is(err, faults.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
}
