package convert

import (
	"time"

	"fileforge/internal/config"
	"fileforge/internal/format"
)

// DefaultRegistry wires a converter for every catalog category from the
// configuration.
func DefaultRegistry(cfg *config.Config) *Registry {
	registry := NewRegistry()

	ffmpeg := NewFFmpegConverter(
		cfg.Convert.FFmpegBinary,
		cfg.Paths.TempDir,
		time.Duration(cfg.Convert.FFmpegTimeout)*time.Second,
	)
	registry.Register(format.CategoryAudio, ffmpeg)
	registry.Register(format.CategoryVideo, ffmpeg)
	registry.Register(format.CategoryImage, NewImageConverter(cfg.Convert.JPEGQuality))
	registry.Register(format.CategoryDocument, NewDocumentConverter(cfg.Paths.TempDir))
	registry.Register(format.CategoryArchive, NewArchiveConverter(cfg.Convert.ArchiveMaxFile))
	registry.Register(format.CategorySubtitle, NewSubtitleConverter())
	return registry
}
