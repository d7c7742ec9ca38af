package convert

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"fileforge/internal/faults"
)

// SubtitleConverter rewrites subtitle files between SRT, VTT, and ASS/SSA.
// Cues are reduced to start, end, and text; styling beyond the default ASS
// style is not preserved.
type SubtitleConverter struct{}

// NewSubtitleConverter returns the subtitle converter.
func NewSubtitleConverter() *SubtitleConverter {
	return &SubtitleConverter{}
}

type subtitleCue struct {
	start string
	end   string
	text  string
}

func (c *SubtitleConverter) Convert(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress = ensureProgress(progress)

	cues, err := parseSubtitle(string(req.Data), req.SourceFormat)
	if err != nil {
		return nil, err
	}
	progress(50)

	out, err := generateSubtitle(cues, req.TargetFormat)
	if err != nil {
		return nil, err
	}
	progress(100)
	return []byte(out), nil
}

func parseSubtitle(text, sourceFormat string) ([]subtitleCue, error) {
	switch sourceFormat {
	case "srt":
		return parseSRT(text), nil
	case "vtt":
		return parseVTT(text), nil
	case "ass", "ssa":
		return parseASS(text), nil
	default:
		return nil, faults.Wrap(faults.ErrConversion, "convert", "subtitle", "unsupported subtitle format: "+sourceFormat, nil)
	}
}

func generateSubtitle(cues []subtitleCue, targetFormat string) (string, error) {
	switch targetFormat {
	case "srt":
		return generateSRT(cues), nil
	case "vtt":
		return generateVTT(cues), nil
	case "ass":
		return generateASS(cues), nil
	default:
		return "", faults.Wrap(faults.ErrConversion, "convert", "subtitle", "unsupported subtitle format: "+targetFormat, nil)
	}
}

func parseSRT(text string) []subtitleCue {
	var cues []subtitleCue
	blocks := splitBlocks(strings.TrimSpace(text))
	for _, block := range blocks {
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
			continue
		}
		start, end, ok := splitTiming(lines[1])
		if !ok {
			continue
		}
		cues = append(cues, subtitleCue{
			start: start,
			end:   end,
			text:  strings.Join(lines[2:], "\n"),
		})
	}
	return cues
}

func parseVTT(text string) []subtitleCue {
	var cues []subtitleCue
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], "-->") {
			continue
		}
		start, end, ok := splitTiming(lines[i])
		if !ok {
			continue
		}
		var textLines []string
		for i++; i < len(lines) && strings.TrimSpace(lines[i]) != ""; i++ {
			textLines = append(textLines, lines[i])
		}
		cues = append(cues, subtitleCue{
			start: start,
			end:   end,
			text:  strings.Join(textLines, "\n"),
		})
	}
	return cues
}

func parseASS(text string) []subtitleCue {
	var cues []subtitleCue
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, "Dialogue:") {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(line, "Dialogue:"), ",")
		if len(parts) < 10 {
			continue
		}
		cues = append(cues, subtitleCue{
			start: strings.TrimSpace(parts[1]),
			end:   strings.TrimSpace(parts[2]),
			text:  strings.ReplaceAll(strings.Join(parts[9:], ","), `\N`, "\n"),
		})
	}
	return cues
}

func generateSRT(cues []subtitleCue) string {
	blocks := make([]string, 0, len(cues))
	for i, cue := range cues {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s", i+1, cue.start, cue.end, cue.text))
	}
	return strings.Join(blocks, "\n\n")
}

func generateVTT(cues []subtitleCue) string {
	blocks := make([]string, 0, len(cues))
	for _, cue := range cues {
		blocks = append(blocks, fmt.Sprintf("%s --> %s\n%s", cue.start, cue.end, cue.text))
	}
	return "WEBVTT\n\n" + strings.Join(blocks, "\n\n")
}

const assHeader = `[Script Info]
Title: Converted Subtitles
ScriptType: v4.00+

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

func generateASS(cues []subtitleCue) string {
	lines := make([]string, 0, len(cues))
	for _, cue := range cues {
		lines = append(lines, fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s",
			cue.start, cue.end, strings.ReplaceAll(cue.text, "\n", `\N`)))
	}
	return assHeader + strings.Join(lines, "\n")
}

func splitTiming(line string) (string, string, bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

func splitBlocks(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []string
	for _, block := range strings.Split(normalized, "\n\n") {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
