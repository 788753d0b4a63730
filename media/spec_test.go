package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() SourceInfo {
	return SourceInfo{
		Path:         "/data/uploads/input.mkv",
		Filename:     "input.mkv",
		Duration:     120,
		HasVideo:     true,
		HasAudio:     true,
		VideoWidth:   1920,
		VideoHeight:  1080,
		VideoBitrate: 4000,
		AudioBitrate: 192,
	}
}

func testSpec() ProcessingSpec {
	return ProcessingSpec{
		Container:     ContainerMP4,
		VideoCodec:    CodecCopy,
		AudioCodec:    CodecCopy,
		StartTime:     0,
		EndTime:       120,
		TotalDuration: 120,
		Preset:        PresetBalanced,
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts plain remux", func(t *testing.T) {
		assert.NoError(t, testSpec().Validate(testSource()))
	})

	t.Run("rejects unknown container", func(t *testing.T) {
		spec := testSpec()
		spec.Container = "avi"
		err := spec.Validate(testSource())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown container")
	})

	t.Run("rejects unknown codecs and presets", func(t *testing.T) {
		spec := testSpec()
		spec.VideoCodec = "h264" // must be the encoder name, not the format
		assert.Error(t, spec.Validate(testSource()))

		spec = testSpec()
		spec.AudioCodec = "mp3"
		assert.Error(t, spec.Validate(testSource()))

		spec = testSpec()
		spec.Preset = "ultrafast"
		assert.Error(t, spec.Validate(testSource()))
	})

	t.Run("rejects codec the container cannot hold", func(t *testing.T) {
		spec := testSpec()
		spec.VideoCodec = CodecVP9
		spec.Container = ContainerMP4
		assert.Error(t, spec.Validate(testSource()))

		spec.Container = ContainerMKV
		assert.NoError(t, spec.Validate(testSource()))

		spec.Container = ContainerWebM
		assert.NoError(t, spec.Validate(testSource()))
	})

	t.Run("rejects audio codec the container cannot hold", func(t *testing.T) {
		// pcm into mp4 would only fail at mux time inside ffmpeg; it has
		// to be caught here instead.
		spec := testSpec()
		spec.AudioCodec = CodecPCM
		err := spec.Validate(testSource())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audio codec")

		spec = testSpec()
		spec.AudioCodec = CodecFLAC
		spec.Container = ContainerMP4
		assert.Error(t, spec.Validate(testSource()))

		spec.Container = ContainerMKV
		assert.NoError(t, spec.Validate(testSource()))

		spec = testSpec()
		spec.Container = ContainerWebM
		spec.VideoCodec = CodecVP9
		spec.AudioCodec = CodecVorbis
		assert.NoError(t, spec.Validate(testSource()))

		spec.AudioCodec = CodecAAC
		assert.Error(t, spec.Validate(testSource()))
	})

	t.Run("rejects bad trim windows", func(t *testing.T) {
		for _, tc := range []struct {
			name       string
			start, end float64
		}{
			{"negative start", -1, 60},
			{"end beyond duration", 0, 121},
			{"empty window", 60, 60},
			{"inverted window", 80, 40},
		} {
			spec := testSpec()
			spec.StartTime = tc.start
			spec.EndTime = tc.end
			err := spec.Validate(testSource())
			assert.Error(t, err, tc.name)
		}
	})

	t.Run("rejects zero total duration", func(t *testing.T) {
		spec := testSpec()
		spec.TotalDuration = 0
		spec.EndTime = 0
		assert.Error(t, spec.Validate(testSource()))
	})

	t.Run("rejects sources missing a required stream", func(t *testing.T) {
		src := testSource()
		src.HasVideo = false
		assert.Error(t, testSpec().Validate(src))

		spec := testSpec()
		spec.Container = ContainerMP3
		src = testSource()
		src.HasAudio = false
		assert.Error(t, spec.Validate(src))
	})

	t.Run("rejects overrides combined with stream copy", func(t *testing.T) {
		spec := testSpec()
		spec.VideoBitrate = 2500
		err := spec.Validate(testSource())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires re-encoding")

		spec = testSpec()
		spec.Resolution = &Resolution{Width: 1280, Height: 720}
		assert.Error(t, spec.Validate(testSource()))

		spec = testSpec()
		spec.AudioBitrate = 96
		assert.Error(t, spec.Validate(testSource()))
	})

	t.Run("accepts parameters equal to the source with stream copy", func(t *testing.T) {
		src := testSource()
		spec := testSpec()
		spec.VideoBitrate = src.VideoBitrate
		spec.AudioBitrate = src.AudioBitrate
		spec.Resolution = &Resolution{Width: src.VideoWidth, Height: src.VideoHeight}
		assert.NoError(t, spec.Validate(src))
	})

	t.Run("validation failures are typed", func(t *testing.T) {
		spec := testSpec()
		spec.Container = "avi"
		err := spec.Validate(testSource())
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
