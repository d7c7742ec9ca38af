package deps

import "fileforge/internal/config"

// Defaults lists the external tools the converter backends call. Only ffmpeg
// is required; the document backends degrade to the in-process paths when
// pandoc or libreoffice are missing.
func Defaults(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	if cfg != nil && cfg.Convert.FFmpegBinary != "" {
		ffmpeg = cfg.Convert.FFmpegBinary
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Audio and video conversion"},
		{Name: "Pandoc", Command: "pandoc", Description: "Markdown and rich document conversion", Optional: true},
		{Name: "LibreOffice", Command: "libreoffice", Description: "Office document conversion", Optional: true},
	}
}

// Missing filters statuses down to unavailable required tools.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			out = append(out, status)
		}
	}
	return out
}
