// Package internal holds process-level configuration shared by the server
// binary and tooling.
package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// LunaDbConfig is the YAML configuration loaded at server start.
type LunaDbConfig struct {
	Storage struct {
		Mode     string `mapstructure:"mode"`
		Workdir  string `mapstructure:"workdir"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`
	Server struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
	BufferPool struct {
		NumFrames int `mapstructure:"num_frames"`
		K         int `mapstructure:"k"`
	} `mapstructure:"buffer_pool"`
}

func LoadConfig(path string) (*LunaDbConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg LunaDbConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
