// Package convert implements the per-category file converters and the
// registry that routes a conversion request to the right one. Audio and
// video go through ffmpeg; office documents through pandoc or libreoffice;
// images, archives, and subtitles are handled in-process.
package convert
