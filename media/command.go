package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"mediaforge/hwaccel"
)

// presetTable maps the abstract speed/quality preset to the concrete
// per-backend encoder preset name. videotoolbox takes no preset flag and
// amf spells it "-quality"; both quirks live here, not in callers.
var presetTable = map[string]map[Preset]string{
	"nvidia": {PresetFast: "p1", PresetBalanced: "p4", PresetQuality: "p7"},
	"intel":  {PresetFast: "veryfast", PresetBalanced: "medium", PresetQuality: "veryslow"},
	"amd":    {PresetFast: "speed", PresetBalanced: "balanced", PresetQuality: "quality"},
	"cpu":    {PresetFast: "superfast", PresetBalanced: "medium", PresetQuality: "slow"},
}

// canonicalAudioCodec is the encoder each audio-only container demands.
var canonicalAudioCodec = map[Container]Codec{
	ContainerMP3:  CodecMP3,
	ContainerFLAC: CodecFLAC,
	ContainerWAV:  CodecPCM,
	ContainerAAC:  CodecAAC,
	ContainerOGG:  CodecVorbis,
}

// Build translates a validated spec plus its source description and the
// capability snapshot into an ffmpeg argument vector. Pure and
// deterministic: the same inputs always produce the same argv.
//
// The returned argv excludes the ffmpeg binary and the output path; the
// process supervisor appends its own (temporary) output path as the
// final argument. The returned name is the user-facing output filename,
// `<source-basename>_processed.<container>`.
func Build(spec ProcessingSpec, src SourceInfo, caps hwaccel.Snapshot) ([]string, string, error) {
	audioOnly := spec.Container.AudioOnly()
	if audioOnly && !src.HasAudio {
		return nil, "", validationErrorf("source %q has no audio stream", src.Filename)
	}
	if !audioOnly && !src.HasVideo {
		return nil, "", validationErrorf("source %q has no video stream", src.Filename)
	}

	videoCodec := string(spec.VideoCodec)
	hwInput := false
	if spec.UseHardwareAcceleration && !audioOnly && spec.VideoCodec != CodecCopy && caps.Available {
		if name := hardwareEncoderFor(spec.VideoCodec, caps); name != "" {
			videoCodec = name
			hwInput = caps.HWAccelFlag != ""
		}
	}

	args := []string{"-y"}

	if hwInput {
		args = append(args, "-hwaccel", caps.HWAccelFlag)
		if caps.HWAccelOutputFormat != "" {
			args = append(args, "-hwaccel_output_format", caps.HWAccelOutputFormat)
		}
	}

	// Large probe buffers matter for hardware decoders parsing AV1
	// stream headers.
	args = append(args, "-analyzeduration", "100M", "-probesize", "100M", "-ignore_unknown")
	args = append(args, "-i", src.Path)

	if spec.StartTime > 0 {
		args = append(args, "-ss", formatSeconds(spec.StartTime))
	}
	if spec.EndTime < spec.TotalDuration {
		args = append(args, "-to", formatSeconds(spec.EndTime))
	}

	if audioOnly {
		args = append(args, "-vn", "-map", "0:a?")
	} else {
		args = append(args, "-map", "0:v?", "-map", "0:a?")
	}
	args = append(args, "-fflags", "+genpts")

	if !audioOnly {
		if spec.VideoCodec == CodecCopy {
			args = append(args, "-c:v", "copy")
		} else {
			args = append(args, "-c:v", videoCodec)

			backend := backendOf(videoCodec)
			if presets, ok := presetTable[backend]; ok {
				if backend == "amd" {
					args = append(args, "-quality", presets[spec.Preset])
				} else {
					args = append(args, "-preset", presets[spec.Preset])
				}
			}

			if spec.resolutionOverride(src) {
				res := spec.Resolution
				switch {
				case hwInput && backend == "nvidia":
					args = append(args, "-vf", fmt.Sprintf("scale_cuda=%d:%d", res.Width, res.Height))
				case hwInput && backend == "intel":
					args = append(args, "-vf", fmt.Sprintf("scale_qsv=%d:%d", res.Width, res.Height))
				default:
					args = append(args, "-s", fmt.Sprintf("%dx%d", res.Width, res.Height))
				}
			}

			if spec.trimmed() {
				args = append(args, "-force_key_frames", "expr:eq(n,0)")
			}
			if spec.videoBitrateOverride(src) {
				args = append(args, "-b:v", fmt.Sprintf("%dk", spec.VideoBitrate))
			}
		}
	}

	audioCodec := spec.AudioCodec
	if audioOnly && audioCodec != CodecCopy {
		audioCodec = canonicalAudioCodec[spec.Container]
	}
	if audioCodec == CodecCopy {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", string(audioCodec))
		if spec.audioBitrateOverride(src) {
			args = append(args, "-b:a", fmt.Sprintf("%dk", spec.AudioBitrate))
		}
	}

	base := strings.TrimSuffix(src.Filename, filepath.Ext(src.Filename))
	outputName := fmt.Sprintf("%s_processed.%s", base, spec.Container)

	return args, outputName, nil
}

func hardwareEncoderFor(codec Codec, caps hwaccel.Snapshot) string {
	switch codec {
	case CodecH264:
		return caps.H264Encoder
	case CodecHEVC:
		return caps.HEVCEncoder
	case CodecAV1:
		return caps.AV1Encoder
	}
	return ""
}

func backendOf(encoder string) string {
	switch {
	case strings.Contains(encoder, "nvenc"):
		return "nvidia"
	case strings.Contains(encoder, "qsv"):
		return "intel"
	case strings.Contains(encoder, "amf"):
		return "amd"
	case strings.Contains(encoder, "videotoolbox"):
		return "mac"
	}
	return "cpu"
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// Preview renders a command line suitable for display and logging. Each
// argument is quoted the way a POSIX shell would require; the result is
// informational only and is never handed to a shell.
func Preview(bin string, args []string, output string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, shellQuote(bin))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	parts = append(parts, shellQuote(output))
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
