// Package stereo estimates the epipolar geometry of every overlapping image pair of a scene and
// triangulates the depth of matched features.
package stereo

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/stereodepth/stereo/rimage/transform"
)

// DefaultOverlapThreshold is the number of matches below which an image pair is not estimated.
const DefaultOverlapThreshold = 50

// Config contains the parameters of a stereo run over a set of images.
type Config struct {
	OverlapThreshold int                     `json:"overlap_threshold"`
	RANSAC           *transform.RANSACConfig `json:"ransac"`
	// ResolvePoseAmbiguity picks, among the four poses consistent with an essential matrix, the
	// one placing the most points in front of both cameras.
	ResolvePoseAmbiguity bool `json:"resolve_pose_ambiguity"`
	// Seed drives every random draw of the run.
	Seed uint64 `json:"seed"`
}

// NewDefaultConfig returns the default stereo configuration.
func NewDefaultConfig() *Config {
	return &Config{
		OverlapThreshold:     DefaultOverlapThreshold,
		RANSAC:               transform.NewDefaultRANSACConfig(),
		ResolvePoseAmbiguity: true,
	}
}

// Validate returns every invalid field of the config.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("stereo config is nil")
	}
	var err error
	if cfg.OverlapThreshold < transform.MinCorrespondences {
		err = multierr.Append(err, errors.Errorf("overlap_threshold must be at least %d, got %d",
			transform.MinCorrespondences, cfg.OverlapThreshold))
	}
	if cfg.RANSAC == nil {
		err = multierr.Append(err, errors.New("ransac config is missing"))
	} else if rerr := cfg.RANSAC.Validate(); rerr != nil {
		err = multierr.Append(err, errors.Wrap(rerr, "ransac"))
	}
	return err
}

// LoadConfig loads a stereo configuration from a json file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()
	configFile, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "error opening config file")
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	if err := jsonParser.Decode(config); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
