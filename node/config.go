// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package node

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/iot-lab/cn-node/eventloop"
	"github.com/iot-lab/cn-node/logger"
	"github.com/iot-lab/cn-node/timesync"
	"github.com/iot-lab/cn-node/transport"
)

const (
	DefaultDevice     = "/dev/ttyCN"
	DefaultPPSPeriod  = time.Second
	DefaultHealthAddr = "localhost:9090"
)

type SerialConfig struct {
	Device string                `yaml:"device"`
	Port   transport.PortOptions `yaml:",inline"`
}

type PPSConfig struct {
	Emulate bool          `yaml:"emulate"`
	Period  time.Duration `yaml:"period"`
}

type Config struct {
	Serial     SerialConfig `yaml:"serial"`
	KFrequency uint32       `yaml:"kfrequency"`
	LoopDepth  int          `yaml:"loop_depth"`
	LogLevel   logger.Level `yaml:"log_level"`
	LogFile    string       `yaml:"log_file"`
	PPS        PPSConfig    `yaml:"pps"`
	HealthAddr string       `yaml:"health_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Device: DefaultDevice,
			Port: transport.PortOptions{
				BaudRate: transport.DefaultBaudRate,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
			},
		},
		KFrequency: timesync.DefaultKFrequency,
		LoopDepth:  eventloop.DefaultDepth,
		LogLevel:   logger.InfoLevel,
		PPS: PPSConfig{
			Period: DefaultPPSPeriod,
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config")
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values and normalizes the serial options.
func (cfg *Config) Validate() error {
	opts, err := cfg.Serial.Port.Normalize()
	if err != nil {
		return errors.Wrapf(err, "serial")
	}
	cfg.Serial.Port = opts

	if cfg.KFrequency == 0 {
		return errors.Errorf("kfrequency must be positive")
	}
	if cfg.LoopDepth <= 0 {
		return errors.Errorf("invalid loop depth %d", cfg.LoopDepth)
	}
	if cfg.PPS.Emulate && cfg.PPS.Period <= 0 {
		return errors.Errorf("invalid pps period %v", cfg.PPS.Period)
	}
	return nil
}
