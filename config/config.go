// mediaforge/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin            string        `mapstructure:"FF_BIN"`
	FFProbeBin       string        `mapstructure:"FFPROBE_BIN"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`
	TaskTimeout      time.Duration `mapstructure:"TASK_TIMEOUT"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	ProgressInterval time.Duration `mapstructure:"PROGRESS_INTERVAL"`
	ErrorTailLines   int           `mapstructure:"ERROR_TAIL_LINES"`
	HWDetect         bool          `mapstructure:"HW_DETECT"`
	HWProbeTimeout   time.Duration `mapstructure:"HW_PROBE_TIMEOUT"`
	ThrottleEnable   bool          `mapstructure:"THROTTLE_ENABLE"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	Port             string        `mapstructure:"PORT"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Defaults are strings wherever a decode hook applies.
	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("OUTPUT_DIR", "")
	vp.SetDefault("TASK_TIMEOUT", "2h")
	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("PROGRESS_INTERVAL", "500ms")
	vp.SetDefault("ERROR_TAIL_LINES", 40)
	vp.SetDefault("HW_DETECT", true)
	vp.SetDefault("HW_PROBE_TIMEOUT", "10s")
	vp.SetDefault("THROTTLE_ENABLE", false)
	vp.SetDefault("THROTTLE_CPU", 50.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("PORT", "8080")

	vp.SetConfigName("mediaforge_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/mediaforge/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("MEDIAFORGE")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
