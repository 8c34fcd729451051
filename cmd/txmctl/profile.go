package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txmlab/go-txm/txm"
)

// profile is the YAML instrument profile. Durations are strings in Go
// duration syntax, e.g. "20s".
type profile struct {
	// Instrument selects the binding table: "nano" (default) or "micro".
	Instrument string `yaml:"instrument"`

	IOCPrefix   string `yaml:"ioc_prefix"`
	HasPermit   bool   `yaml:"has_permit"`
	UseShutterA *bool  `yaml:"use_shutter_a"`
	UseShutterB *bool  `yaml:"use_shutter_b"`
	PutTimeout  string `yaml:"put_timeout"`

	ZonePlate struct {
		Diameter float64 `yaml:"diameter"`
		DRN      float64 `yaml:"drn"`
	} `yaml:"zone_plate"`

	// ScanLog is the path of the sqlite scan history. Empty disables
	// recording.
	ScanLog string `yaml:"scan_log"`
}

func loadProfile(path string) (*profile, error) {
	p := &profile{}
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	return p, nil
}

func (p *profile) options() ([]txm.Option, error) {
	var opts []txm.Option

	if p.HasPermit {
		opts = append(opts, txm.WithPermit())
	}
	if p.IOCPrefix != "" {
		opts = append(opts, txm.WithIOCPrefix(p.IOCPrefix))
	}
	if p.UseShutterA != nil {
		opts = append(opts, txm.WithShutterA(*p.UseShutterA))
	}
	if p.UseShutterB != nil {
		opts = append(opts, txm.WithShutterB(*p.UseShutterB))
	}
	if p.PutTimeout != "" {
		d, err := time.ParseDuration(p.PutTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse put_timeout: %w", err)
		}
		opts = append(opts, txm.WithPutTimeout(d))
	}
	if p.ZonePlate.Diameter != 0 || p.ZonePlate.DRN != 0 {
		opts = append(opts, txm.WithZonePlate(p.ZonePlate.Diameter, p.ZonePlate.DRN))
	}

	return opts, nil
}

// microscope builds the controller the profile describes.
func (p *profile) microscope() (*txm.Microscope, error) {
	opts, err := p.options()
	if err != nil {
		return nil, err
	}

	switch p.Instrument {
	case "", "nano":
		return txm.NewMicroscope(opts...)
	case "micro":
		return txm.NewMicroCT(opts...)
	default:
		return nil, fmt.Errorf("unknown instrument %q", p.Instrument)
	}
}
