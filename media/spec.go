package media

import (
	"fmt"
)

// Container is the requested output container format.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerMKV  Container = "mkv"
	ContainerMOV  Container = "mov"
	ContainerWebM Container = "webm"
	ContainerMP3  Container = "mp3"
	ContainerFLAC Container = "flac"
	ContainerWAV  Container = "wav"
	ContainerAAC  Container = "aac"
	ContainerOGG  Container = "ogg"
)

// AudioOnly reports whether the container carries no video stream.
func (c Container) AudioOnly() bool {
	switch c {
	case ContainerMP3, ContainerFLAC, ContainerWAV, ContainerAAC, ContainerOGG:
		return true
	}
	return false
}

// Codec names an encoder, or requests a stream-copy via CodecCopy.
type Codec string

const (
	CodecCopy Codec = "copy"

	CodecH264 Codec = "libx264"
	CodecHEVC Codec = "libx265"
	CodecAV1  Codec = "libaom-av1"
	CodecVP9  Codec = "libvpx-vp9"

	CodecAAC    Codec = "aac"
	CodecMP3    Codec = "libmp3lame"
	CodecOpus   Codec = "libopus"
	CodecVorbis Codec = "libvorbis"
	CodecFLAC   Codec = "flac"
	CodecPCM    Codec = "pcm_s16le"
)

// Preset is the abstract speed/quality trade-off tag. The concrete
// encoder preset name is resolved per backend by the command builder.
type Preset string

const (
	PresetFast     Preset = "fast"
	PresetBalanced Preset = "balanced"
	PresetQuality  Preset = "quality"
)

// Resolution is an optional output resolution override.
type Resolution struct {
	Width           int  `json:"width"`
	Height          int  `json:"height"`
	KeepAspectRatio bool `json:"keepAspectRatio"`
}

// ProcessingSpec is an immutable description of one requested
// transformation. A zero bitrate means "keep the source bitrate"; a nil
// Resolution means "keep the source resolution".
type ProcessingSpec struct {
	Container               Container
	VideoCodec              Codec
	AudioCodec              Codec
	VideoBitrate            int // kbit/s
	AudioBitrate            int // kbit/s
	Resolution              *Resolution
	StartTime               float64 // seconds
	EndTime                 float64
	TotalDuration           float64
	UseHardwareAcceleration bool
	Preset                  Preset
}

// SourceInfo describes the media file a spec will be applied to. It is
// supplied by the collaborator owning file metadata (typically derived
// from an ffprobe report).
type SourceInfo struct {
	Path         string
	Filename     string
	Duration     float64
	HasVideo     bool
	HasAudio     bool
	VideoWidth   int
	VideoHeight  int
	VideoBitrate int // kbit/s
	AudioBitrate int // kbit/s
}

// ValidationError marks a malformed or inconsistent ProcessingSpec.
// Requests failing validation are rejected before any Task is created
// and are never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid processing spec: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var videoCodecs = map[Codec]bool{
	CodecCopy: true,
	CodecH264: true,
	CodecHEVC: true,
	CodecAV1:  true,
	CodecVP9:  true,
}

var audioCodecs = map[Codec]bool{
	CodecCopy:   true,
	CodecAAC:    true,
	CodecMP3:    true,
	CodecOpus:   true,
	CodecVorbis: true,
	CodecFLAC:   true,
	CodecPCM:    true,
}

// containerVideoCodecs lists the named video encoders each video
// container accepts. Anything else is rejected rather than silently
// remapped.
var containerVideoCodecs = map[Container][]Codec{
	ContainerMP4:  {CodecH264, CodecHEVC, CodecAV1},
	ContainerMKV:  {CodecH264, CodecHEVC, CodecAV1, CodecVP9},
	ContainerMOV:  {CodecH264, CodecHEVC},
	ContainerWebM: {CodecVP9, CodecAV1},
}

// containerAudioCodecs is the audio counterpart: the encoders each
// video container can mux. An incompatible pair fails here instead of
// at mux time inside ffmpeg.
var containerAudioCodecs = map[Container][]Codec{
	ContainerMP4:  {CodecAAC, CodecMP3},
	ContainerMKV:  {CodecAAC, CodecMP3, CodecOpus, CodecVorbis, CodecFLAC},
	ContainerMOV:  {CodecAAC, CodecMP3},
	ContainerWebM: {CodecOpus, CodecVorbis},
}

// Validate checks the spec against the source it will be applied to.
// All failures are *ValidationError.
func (s ProcessingSpec) Validate(src SourceInfo) error {
	if !s.Container.AudioOnly() {
		if _, ok := containerVideoCodecs[s.Container]; !ok {
			return validationErrorf("unknown container %q", s.Container)
		}
	}
	if !videoCodecs[s.VideoCodec] {
		return validationErrorf("unknown video codec %q", s.VideoCodec)
	}
	if !audioCodecs[s.AudioCodec] {
		return validationErrorf("unknown audio codec %q", s.AudioCodec)
	}
	switch s.Preset {
	case PresetFast, PresetBalanced, PresetQuality:
	default:
		return validationErrorf("unknown preset %q", s.Preset)
	}

	if s.TotalDuration <= 0 {
		return validationErrorf("total duration must be positive")
	}
	if s.StartTime < 0 || s.EndTime > s.TotalDuration || s.StartTime >= s.EndTime {
		return validationErrorf("trim window [%g, %g] outside [0, %g]", s.StartTime, s.EndTime, s.TotalDuration)
	}

	if s.Container.AudioOnly() {
		if !src.HasAudio {
			return validationErrorf("container %q is audio-only but source %q has no audio stream", s.Container, src.Filename)
		}
	} else {
		if !src.HasVideo {
			return validationErrorf("container %q requires video but source %q has no video stream", s.Container, src.Filename)
		}
		if s.VideoCodec != CodecCopy && !codecAllowed(containerVideoCodecs[s.Container], s.VideoCodec) {
			return validationErrorf("video codec %q is not valid for container %q", s.VideoCodec, s.Container)
		}
		if s.AudioCodec != CodecCopy && !codecAllowed(containerAudioCodecs[s.Container], s.AudioCodec) {
			return validationErrorf("audio codec %q is not valid for container %q", s.AudioCodec, s.Container)
		}
	}

	// Stream-copy cannot honour overrides; any parameter that differs
	// from the source requires a re-encode.
	if s.VideoCodec == CodecCopy {
		if s.videoBitrateOverride(src) {
			return validationErrorf("video bitrate override requires re-encoding, not copy")
		}
		if s.resolutionOverride(src) {
			return validationErrorf("resolution override requires re-encoding, not copy")
		}
	}
	if s.AudioCodec == CodecCopy && s.audioBitrateOverride(src) {
		return validationErrorf("audio bitrate override requires re-encoding, not copy")
	}

	return nil
}

func codecAllowed(allowed []Codec, codec Codec) bool {
	for _, a := range allowed {
		if a == codec {
			return true
		}
	}
	return false
}

func (s ProcessingSpec) videoBitrateOverride(src SourceInfo) bool {
	return s.VideoBitrate != 0 && s.VideoBitrate != src.VideoBitrate
}

func (s ProcessingSpec) audioBitrateOverride(src SourceInfo) bool {
	return s.AudioBitrate != 0 && s.AudioBitrate != src.AudioBitrate
}

func (s ProcessingSpec) resolutionOverride(src SourceInfo) bool {
	if s.Resolution == nil {
		return false
	}
	return s.Resolution.Width != src.VideoWidth || s.Resolution.Height != src.VideoHeight
}

func (s ProcessingSpec) trimmed() bool {
	return s.StartTime > 0 || s.EndTime < s.TotalDuration
}
