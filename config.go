package output

import (
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ReconnectSettings configures the Reconnect Controller.
type ReconnectSettings struct {
	MaxRetries int     `yaml:"max_retries"`
	RetrySec   int     `yaml:"retry_sec"`
	Exponent   float64 `yaml:"exponent,omitempty"`
}

// DefaultReconnectSettings matches the original's defaults
// (obs-output.c: reconnect_retry_sec = 2, reconnect_retry_max = 20).
func DefaultReconnectSettings() ReconnectSettings {
	return ReconnectSettings{
		MaxRetries: 20,
		RetrySec:   2,
		Exponent:   reconnectBaseExp + rand.Float64()*0.05,
	}
}

const (
	reconnectBaseExp     = 1.5
	reconnectRetryMaxMs  = 15 * 60 * 1000
)

// DelaySettings configures the Delay Buffer.
type DelaySettings struct {
	Seconds  int  `yaml:"seconds"`
	Preserve bool `yaml:"preserve"`
}

// Active reports whether a delay window is configured at all.
func (d DelaySettings) Active() bool { return d.Seconds > 0 }

// Size describes a scaled output resolution override.
type Size struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// Settings is the configuration an Output is created with. It is
// YAML-loadable, grounded on jmylchreest-tvarr's and mantonx-viewra's
// yaml-tagged config structs.
type Settings struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	Flags Flag `yaml:"-"`

	ScaledSize Size `yaml:"scaled_size,omitempty"`

	Reconnect ReconnectSettings `yaml:"reconnect"`
	Delay     DelaySettings     `yaml:"delay"`

	MixerMask uint32 `yaml:"mixer_mask,omitempty"`

	// VideoFrameInterval is the video encoder's frame interval. Required
	// for pause quantization.
	VideoFrameInterval time.Duration `yaml:"video_frame_interval"`

	// Service, when non-nil, is the bound network endpoint.
	Service Service `yaml:"-"`
}

// LoadSettings reads YAML-encoded Settings from path, matching the
// config-loading convention of jmylchreest-tvarr/mantonx-viewra.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, err
	}
	if s.Reconnect.Exponent == 0 {
		s.Reconnect.Exponent = DefaultReconnectSettings().Exponent
	}
	return s, nil
}
