// Package hwaccel queries the host once at startup for usable hardware
// encoder backends. The probe fails closed: any error or timeout yields
// the zero Snapshot, meaning "no hardware acceleration available".
package hwaccel

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Snapshot is the immutable result of a capability probe. It is computed
// once per process lifetime and injected into consumers; a restart is
// required to re-probe.
type Snapshot struct {
	Available           bool   `json:"hardwareAvailable"`
	Vendor              string `json:"hardwareType,omitempty"`
	H264Encoder         string `json:"-"`
	HEVCEncoder         string `json:"-"`
	AV1Encoder          string `json:"-"`
	HWAccelFlag         string `json:"-"`
	HWAccelOutputFormat string `json:"-"`
}

// Options controls a single probe run.
type Options struct {
	Enabled bool
	FFBin   string
	Timeout time.Duration
}

type backend struct {
	vendor              string
	h264                string
	hevc                string
	av1                 string
	hwaccelFlag         string
	hwaccelOutputFormat string
}

// Probed vendors in priority order. A backend is usable when its H.264
// encoder appears in the ffmpeg encoder listing; HEVC/AV1 are filled in
// only when their encoders are listed too.
var backends = []backend{
	{vendor: "nvidia", h264: "h264_nvenc", hevc: "hevc_nvenc", av1: "av1_nvenc", hwaccelFlag: "cuda", hwaccelOutputFormat: "cuda"},
	{vendor: "intel", h264: "h264_qsv", hevc: "hevc_qsv", hwaccelFlag: "qsv", hwaccelOutputFormat: "qsv"},
	{vendor: "amd", h264: "h264_amf", hevc: "hevc_amf", av1: "av1_amf"},
	{vendor: "mac", h264: "h264_videotoolbox", hevc: "hevc_videotoolbox"},
}

// Probe runs the capability detection once. Blocking, bounded by
// opts.Timeout (and the caller's ctx); never returns an error because
// degradation to software encoding is the designed recovery.
func Probe(ctx context.Context, opts Options) Snapshot {
	if !opts.Enabled {
		return Snapshot{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := opts.FFBin
	if bin == "" {
		bin = "ffmpeg"
	}

	out, err := exec.CommandContext(probeCtx, bin, "-v", "quiet", "-encoders").Output()
	if err != nil {
		log.Printf("Hardware probe failed, falling back to software encoding: %v", err)
		return Snapshot{}
	}

	return FromEncoderList(string(out))
}

// FromEncoderList derives a capability snapshot from the text of
// `ffmpeg -encoders`. Split out so detection is testable without ffmpeg.
func FromEncoderList(listing string) Snapshot {
	for _, b := range backends {
		if !hasEncoder(listing, b.h264) {
			continue
		}

		snap := Snapshot{
			Available:           true,
			Vendor:              b.vendor,
			H264Encoder:         b.h264,
			HWAccelFlag:         b.hwaccelFlag,
			HWAccelOutputFormat: b.hwaccelOutputFormat,
		}
		if hasEncoder(listing, b.hevc) {
			snap.HEVCEncoder = b.hevc
		}
		if hasEncoder(listing, b.av1) {
			snap.AV1Encoder = b.av1
		}
		return snap
	}

	return Snapshot{}
}

func hasEncoder(listing, name string) bool {
	return name != "" && strings.Contains(listing, name)
}
