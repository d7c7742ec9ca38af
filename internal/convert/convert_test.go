package convert

import (
	"errors"
	"testing"

	"fileforge/internal/faults"
	"fileforge/internal/format"
	"fileforge/internal/testsupport"
)

func TestDefaultRegistryCoversAllCategories(t *testing.T) {
	registry := DefaultRegistry(testsupport.NewConfig(t))

	for _, cat := range format.Categories() {
		if _, err := registry.Lookup(cat); err != nil {
			t.Fatalf("no converter for category %s: %v", cat, err)
		}
	}
}

func TestLookupUnknownCategory(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Lookup(format.CategoryAudio)
	if !errors.Is(err, faults.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
}

func TestFFmpegCodecArgs(t *testing.T) {
	args, err := buildCodecArgs(Request{
		SourceFormat: "wav",
		TargetFormat: "mp3",
		Options:      map[string]string{"bitrate": "192k"},
	})
	if err != nil {
		t.Fatalf("buildCodecArgs: %v", err)
	}

	joined := ""
	for _, arg := range args {
		joined += arg + " "
	}
	if joined != "-b:a 192k -codec:a libmp3lame " {
		t.Fatalf("unexpected args: %q", joined)
	}
}

func TestFFmpegVideoArgsCustomCodecOverridesDefaults(t *testing.T) {
	args, err := buildCodecArgs(Request{
		SourceFormat: "mkv",
		TargetFormat: "mp4",
		Options:      map[string]string{"codec": "libx265"},
	})
	if err != nil {
		t.Fatalf("buildCodecArgs: %v", err)
	}

	foundCustom := false
	for i, arg := range args {
		if arg == "-codec:v" && i+1 < len(args) && args[i+1] == "libx265" {
			foundCustom = true
		}
		if arg == "libx264" {
			t.Fatalf("default codec should be suppressed: %v", args)
		}
	}
	if !foundCustom {
		t.Fatalf("missing custom codec: %v", args)
	}
}

func TestFFmpegRejectsBadResolution(t *testing.T) {
	_, err := buildCodecArgs(Request{
		SourceFormat: "mkv",
		TargetFormat: "mp4",
		Options:      map[string]string{"resolution": "garbage"},
	})
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
