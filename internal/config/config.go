package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// WebRTCConfig is the transport surface handed to the media engine: where to
// listen, what to announce, and the bitrate knobs.
type WebRTCConfig struct {
	ListenIP                        string `mapstructure:"listen_ip"`
	AnnouncedIP                     string `mapstructure:"announced_ip"`
	EnableUDP                       bool   `mapstructure:"enable_udp"`
	EnableTCP                       bool   `mapstructure:"enable_tcp"`
	PreferUDP                       bool   `mapstructure:"prefer_udp"`
	MaxIncomingBitrate              int    `mapstructure:"max_incoming_bitrate"`
	InitialAvailableOutgoingBitrate uint32 `mapstructure:"initial_available_outgoing_bitrate"`
}

type Config struct {
	Mode       string       `mapstructure:"mode"`
	Port       int          `mapstructure:"port"`
	StaticPath string       `mapstructure:"static_path"`
	Secret     string       `mapstructure:"secret"`
	TLS        TLSConfig    `mapstructure:"tls"`
	WebRTC     WebRTCConfig `mapstructure:"webrtc"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8443)
	v.SetDefault("static_path", "./public")
	v.SetDefault("webrtc.listen_ip", "127.0.0.1")
	v.SetDefault("webrtc.enable_udp", true)
	v.SetDefault("webrtc.enable_tcp", true)
	v.SetDefault("webrtc.prefer_udp", true)
	v.SetDefault("webrtc.max_incoming_bitrate", 1500000)
	v.SetDefault("webrtc.initial_available_outgoing_bitrate", 1000000)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}
