package hwaccel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const nvidiaListing = `
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D hevc_nvenc           NVIDIA NVENC hevc encoder (codec hevc)
 V....D av1_nvenc            NVIDIA NVENC av1 encoder (codec av1)
 V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
`

const intelListing = `
 V..... h264_qsv             H.264 / AVC (Intel Quick Sync Video acceleration) (codec h264)
 V..... hevc_qsv             HEVC (Intel Quick Sync Video acceleration) (codec hevc)
`

const softwareListing = `
 V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V..... libx265              libx265 H.265 / HEVC (codec hevc)
 A..... aac                  AAC (Advanced Audio Coding)
`

func TestFromEncoderList(t *testing.T) {
	t.Run("nvidia", func(t *testing.T) {
		snap := FromEncoderList(nvidiaListing)
		assert.True(t, snap.Available)
		assert.Equal(t, "nvidia", snap.Vendor)
		assert.Equal(t, "h264_nvenc", snap.H264Encoder)
		assert.Equal(t, "hevc_nvenc", snap.HEVCEncoder)
		assert.Equal(t, "av1_nvenc", snap.AV1Encoder)
		assert.Equal(t, "cuda", snap.HWAccelFlag)
	})

	t.Run("intel without av1", func(t *testing.T) {
		snap := FromEncoderList(intelListing)
		assert.True(t, snap.Available)
		assert.Equal(t, "intel", snap.Vendor)
		assert.Equal(t, "h264_qsv", snap.H264Encoder)
		assert.Equal(t, "hevc_qsv", snap.HEVCEncoder)
		assert.Empty(t, snap.AV1Encoder)
		assert.Equal(t, "qsv", snap.HWAccelFlag)
	})

	t.Run("nvidia wins over intel when both are listed", func(t *testing.T) {
		snap := FromEncoderList(nvidiaListing + intelListing)
		assert.Equal(t, "nvidia", snap.Vendor)
	})

	t.Run("software only yields the zero snapshot", func(t *testing.T) {
		snap := FromEncoderList(softwareListing)
		assert.Equal(t, Snapshot{}, snap)
	})

	t.Run("hevc requires the h264 encoder to anchor the backend", func(t *testing.T) {
		snap := FromEncoderList(" V....D hevc_nvenc  NVIDIA NVENC hevc encoder")
		assert.False(t, snap.Available)
	})
}

func TestProbe(t *testing.T) {
	t.Run("disabled probe returns the zero snapshot", func(t *testing.T) {
		snap := Probe(context.Background(), Options{Enabled: false})
		assert.Equal(t, Snapshot{}, snap)
	})

	t.Run("missing binary fails closed", func(t *testing.T) {
		snap := Probe(context.Background(), Options{
			Enabled: true,
			FFBin:   "/nonexistent/ffmpeg-binary",
			Timeout: time.Second,
		})
		assert.Equal(t, Snapshot{}, snap)
	})
}
