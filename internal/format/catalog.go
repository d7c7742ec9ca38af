package format

import (
	"sort"
	"strings"

	"fileforge/internal/faults"
)

// Category groups formats by the converter capable of handling them.
type Category string

const (
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryArchive  Category = "archive"
	CategorySubtitle Category = "subtitle"
)

var allCategories = []Category{
	CategoryAudio,
	CategoryVideo,
	CategoryImage,
	CategoryDocument,
	CategoryArchive,
	CategorySubtitle,
}

// Format describes one registered file format and its reachable targets.
// Targets are directed and explicit: the graph is not symmetric and there
// is no implicit self-edge.
type Format struct {
	ID            string
	Name          string
	MimeType      string
	Category      Category
	ConvertibleTo []string
}

var catalog = []Format{
	// Audio
	{ID: "mp3", Name: "MP3", MimeType: "audio/mpeg", Category: CategoryAudio, ConvertibleTo: []string{"wav", "flac", "aac", "ogg", "m4a", "wma"}},
	{ID: "wav", Name: "WAV", MimeType: "audio/wav", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "flac", "aac", "ogg", "m4a"}},
	{ID: "flac", Name: "FLAC", MimeType: "audio/flac", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "wav", "aac", "ogg", "m4a"}},
	{ID: "aac", Name: "AAC", MimeType: "audio/aac", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "wav", "flac", "ogg", "m4a"}},
	{ID: "ogg", Name: "OGG", MimeType: "audio/ogg", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "wav", "flac", "aac", "m4a"}},
	{ID: "m4a", Name: "M4A", MimeType: "audio/mp4", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "wav", "flac", "aac", "ogg"}},
	{ID: "wma", Name: "WMA", MimeType: "audio/x-ms-wma", Category: CategoryAudio, ConvertibleTo: []string{"mp3", "wav", "flac"}},

	// Video
	{ID: "mp4", Name: "MP4", MimeType: "video/mp4", Category: CategoryVideo, ConvertibleTo: []string{"avi", "mkv", "mov", "webm", "gif", "mp3"}},
	{ID: "avi", Name: "AVI", MimeType: "video/x-msvideo", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "mkv", "mov", "webm", "gif"}},
	{ID: "mkv", Name: "MKV", MimeType: "video/x-matroska", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "avi", "mov", "webm", "gif"}},
	{ID: "mov", Name: "MOV", MimeType: "video/quicktime", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "avi", "mkv", "webm", "gif"}},
	{ID: "webm", Name: "WebM", MimeType: "video/webm", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "avi", "mkv", "mov", "gif"}},
	{ID: "flv", Name: "FLV", MimeType: "video/x-flv", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "avi", "mkv", "webm"}},
	{ID: "wmv", Name: "WMV", MimeType: "video/x-ms-wmv", Category: CategoryVideo, ConvertibleTo: []string{"mp4", "avi", "mkv", "webm"}},

	// Images
	{ID: "jpg", Name: "JPEG", MimeType: "image/jpeg", Category: CategoryImage, ConvertibleTo: []string{"png", "webp", "gif", "bmp", "tiff", "ico", "pdf"}},
	{ID: "jpeg", Name: "JPEG", MimeType: "image/jpeg", Category: CategoryImage, ConvertibleTo: []string{"png", "webp", "gif", "bmp", "tiff", "ico", "pdf"}},
	{ID: "png", Name: "PNG", MimeType: "image/png", Category: CategoryImage, ConvertibleTo: []string{"jpg", "webp", "gif", "bmp", "tiff", "ico", "pdf"}},
	{ID: "webp", Name: "WebP", MimeType: "image/webp", Category: CategoryImage, ConvertibleTo: []string{"jpg", "png", "gif", "bmp", "tiff"}},
	{ID: "gif", Name: "GIF", MimeType: "image/gif", Category: CategoryImage, ConvertibleTo: []string{"jpg", "png", "webp", "mp4"}},
	{ID: "bmp", Name: "BMP", MimeType: "image/bmp", Category: CategoryImage, ConvertibleTo: []string{"jpg", "png", "webp", "gif", "tiff"}},
	{ID: "tiff", Name: "TIFF", MimeType: "image/tiff", Category: CategoryImage, ConvertibleTo: []string{"jpg", "png", "webp", "bmp", "pdf"}},
	{ID: "svg", Name: "SVG", MimeType: "image/svg+xml", Category: CategoryImage, ConvertibleTo: []string{"png", "jpg", "pdf"}},
	{ID: "ico", Name: "ICO", MimeType: "image/x-icon", Category: CategoryImage, ConvertibleTo: []string{"png", "jpg"}},
	{ID: "heic", Name: "HEIC", MimeType: "image/heic", Category: CategoryImage, ConvertibleTo: []string{"jpg", "png", "webp"}},

	// Documents
	{ID: "pdf", Name: "PDF", MimeType: "application/pdf", Category: CategoryDocument, ConvertibleTo: []string{"docx", "txt", "jpg", "png"}},
	{ID: "docx", Name: "DOCX", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "txt", "odt", "html", "md"}},
	{ID: "doc", Name: "DOC", MimeType: "application/msword", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "docx", "txt", "odt"}},
	{ID: "txt", Name: "TXT", MimeType: "text/plain", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "docx", "html", "md"}},
	{ID: "rtf", Name: "RTF", MimeType: "application/rtf", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "docx", "txt"}},
	{ID: "odt", Name: "ODT", MimeType: "application/vnd.oasis.opendocument.text", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "docx", "txt"}},
	{ID: "html", Name: "HTML", MimeType: "text/html", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "txt", "md"}},
	{ID: "md", Name: "Markdown", MimeType: "text/markdown", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "html", "docx", "txt"}},
	{ID: "epub", Name: "EPUB", MimeType: "application/epub+zip", Category: CategoryDocument, ConvertibleTo: []string{"pdf", "txt", "html"}},

	// Archives
	{ID: "zip", Name: "ZIP", MimeType: "application/zip", Category: CategoryArchive, ConvertibleTo: []string{"tar", "7z"}},
	{ID: "rar", Name: "RAR", MimeType: "application/vnd.rar", Category: CategoryArchive, ConvertibleTo: []string{"zip", "tar", "7z"}},
	{ID: "7z", Name: "7Z", MimeType: "application/x-7z-compressed", Category: CategoryArchive, ConvertibleTo: []string{"zip", "tar"}},
	{ID: "tar", Name: "TAR", MimeType: "application/x-tar", Category: CategoryArchive, ConvertibleTo: []string{"zip", "7z", "gz"}},
	{ID: "gz", Name: "GZ", MimeType: "application/gzip", Category: CategoryArchive, ConvertibleTo: []string{"zip", "tar"}},

	// Subtitles
	{ID: "srt", Name: "SRT", MimeType: "application/x-subrip", Category: CategorySubtitle, ConvertibleTo: []string{"vtt", "ass"}},
	{ID: "vtt", Name: "VTT", MimeType: "text/vtt", Category: CategorySubtitle, ConvertibleTo: []string{"srt", "ass"}},
	{ID: "ass", Name: "ASS", MimeType: "text/x-ass", Category: CategorySubtitle, ConvertibleTo: []string{"srt", "vtt"}},
	{ID: "ssa", Name: "SSA", MimeType: "text/x-ssa", Category: CategorySubtitle, ConvertibleTo: []string{"srt", "vtt", "ass"}},
}

var (
	byID      map[string]Format
	adjacency map[string]map[string]struct{}
)

func init() {
	byID = make(map[string]Format, len(catalog))
	adjacency = make(map[string]map[string]struct{}, len(catalog))
	for _, f := range catalog {
		byID[f.ID] = f
		targets := make(map[string]struct{}, len(f.ConvertibleTo))
		for _, target := range f.ConvertibleTo {
			targets[target] = struct{}{}
		}
		adjacency[f.ID] = targets
	}
}

// Normalize lowercases a format id and strips a leading dot so extension
// inputs like ".MP3" resolve.
func Normalize(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), ".")
}

// Lookup returns the format registered under id.
func Lookup(id string) (Format, error) {
	f, ok := byID[Normalize(id)]
	if !ok {
		return Format{}, faults.Wrap(faults.ErrNotFound, "format", "", "unknown format: "+id, nil)
	}
	return f, nil
}

// CanConvert reports whether an explicit edge from one format to another is
// registered. Unknown ids and missing edges both report false.
func CanConvert(from, to string) bool {
	targets, ok := adjacency[Normalize(from)]
	if !ok {
		return false
	}
	_, ok = targets[Normalize(to)]
	return ok
}

// ByCategory returns the formats in a category ordered by id.
func ByCategory(cat Category) []Format {
	var out []Format
	for _, f := range catalog {
		if f.Category == cat {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every registered format ordered by id.
func All() []Format {
	out := make([]Format, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categories returns the closed category set in registration order.
func Categories() []Category {
	cp := make([]Category, len(allCategories))
	copy(cp, allCategories)
	return cp
}

// MimeType returns the registered mime type for a format id, falling back
// to application/octet-stream for unknown ids.
func MimeType(id string) string {
	if f, ok := byID[Normalize(id)]; ok {
		return f.MimeType
	}
	return "application/octet-stream"
}
