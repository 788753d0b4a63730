package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"mediaforge/media"
)

// ProbeStream mirrors one stream entry of ffprobe's JSON output.
type ProbeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	CodecLongName string `json:"codec_long_name,omitempty"`
	BitRate       string `json:"bit_rate,omitempty"`

	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`

	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
}

type ProbeFormat struct {
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name,omitempty"`
	Duration       string `json:"duration"`
	Size           string `json:"size,omitempty"`
	BitRate        string `json:"bit_rate,omitempty"`
}

// ProbeReport is the decoded result of an ffprobe inspection.
type ProbeReport struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeSource inspects a media file with ffprobe.
func (r *Runner) ProbeSource(ctx context.Context, path string) (ProbeReport, error) {
	out, err := exec.CommandContext(ctx, r.cfg.FFProbeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	).Output()
	if err != nil {
		return ProbeReport{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var report ProbeReport
	if err := json.Unmarshal(out, &report); err != nil {
		return ProbeReport{}, fmt.Errorf("could not parse ffprobe output: %w", err)
	}
	return report, nil
}

// SourceInfo condenses a probe report into the source description the
// validator and command builder operate on.
func (p ProbeReport) SourceInfo(path string) media.SourceInfo {
	info := media.SourceInfo{
		Path:     path,
		Filename: filepath.Base(path),
	}

	if d, err := strconv.ParseFloat(p.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoWidth = s.Width
			info.VideoHeight = s.Height
			info.VideoBitrate = kilobits(s.BitRate)
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioBitrate = kilobits(s.BitRate)
		}
	}
	return info
}

func kilobits(bitRate string) int {
	v, err := strconv.Atoi(bitRate)
	if err != nil {
		return 0
	}
	return v / 1000
}
