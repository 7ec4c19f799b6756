// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/mkvmux/internal/cluster"
	"github.com/bluenviron/mkvmux/internal/conf/env"
	"github.com/bluenviron/mkvmux/internal/conf/jsonwrapper"
	"github.com/bluenviron/mkvmux/internal/conf/yamlwrapper"
	"github.com/bluenviron/mkvmux/internal/logger"
	"github.com/bluenviron/mkvmux/internal/matroska"
)

// EnvPrefix is the prefix of environment variables that override the configuration.
const EnvPrefix = "MKVMUX"

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogStructured   bool            `json:"logStructured"`
	LogFile         string          `json:"logFile"`
	SysLogPrefix    string          `json:"sysLogPrefix"`
	Title           string          `json:"title"`

	// Clusters
	TimecodeScale        Duration  `json:"timecodeScale"`
	MaxClusterDuration   Duration  `json:"maxClusterDuration"`
	MaxBlocksPerCluster  int       `json:"maxBlocksPerCluster"`
	Lacing               Lacing    `json:"lacing"`
	AlwaysWriteDurations bool      `json:"alwaysWriteDurations"`
	VideoCues            CuePolicy `json:"videoCues"`
	AudioCues            CuePolicy `json:"audioCues"`
	SubtitleCues         CuePolicy `json:"subtitleCues"`
	ClusterIndex         bool      `json:"clusterIndex"`

	// Splitting
	Split         bool       `json:"split"`
	SplitMode     SplitMode  `json:"splitMode"`
	SplitSize     StringSize `json:"splitSize"`
	SplitDuration Duration   `json:"splitDuration"`
	SplitMaxFiles int        `json:"splitMaxFiles"`
	Linking       bool       `json:"linking"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "mkvmux.log"
	conf.SysLogPrefix = "mkvmux"

	// Clusters
	conf.TimecodeScale = Duration(time.Millisecond)
	conf.MaxClusterDuration = Duration(2 * time.Second)
	conf.MaxBlocksPerCluster = 65535
	conf.Lacing = Lacing(matroska.LacingAuto)
	conf.VideoCues = CuePolicy(cluster.CuePolicyKeyFrames)
	conf.AudioCues = CuePolicy(cluster.CuePolicySparse)
	conf.SubtitleCues = CuePolicy(cluster.CuePolicyKeyFrames)
	conf.ClusterIndex = true

	// Splitting
	conf.SplitMode = SplitModeSize
	conf.SplitSize = 700 * 1024 * 1024
	conf.SplitDuration = Duration(time.Hour)
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load(EnvPrefix, conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	// General

	if conf.LogFile == "" && conf.LogDestinations.contains(logger.DestinationFile) {
		return fmt.Errorf("'logFile' must be set when the file destination is enabled")
	}

	// Clusters

	if conf.TimecodeScale <= 0 {
		return fmt.Errorf("'timecodeScale' must be greater than zero")
	}
	if time.Duration(conf.TimecodeScale) > time.Second {
		return fmt.Errorf("'timecodeScale' must be at most one second")
	}
	if conf.MaxClusterDuration <= 0 {
		return fmt.Errorf("'maxClusterDuration' must be greater than zero")
	}
	// block timecodes are 16-bit signed values relative to the cluster
	if int64(conf.MaxClusterDuration)/int64(conf.TimecodeScale) >= 32767 {
		return fmt.Errorf("'maxClusterDuration' must be less than 32767 times 'timecodeScale'")
	}
	if conf.MaxBlocksPerCluster <= 0 {
		return fmt.Errorf("'maxBlocksPerCluster' must be greater than zero")
	}

	// Splitting

	if conf.Split {
		switch conf.SplitMode {
		case SplitModeSize:
			if conf.SplitSize == 0 {
				return fmt.Errorf("'splitSize' must be greater than zero")
			}

		case SplitModeDuration:
			if conf.SplitDuration <= 0 {
				return fmt.Errorf("'splitDuration' must be greater than zero")
			}
		}
	}
	if conf.SplitMaxFiles < 0 {
		return fmt.Errorf("'splitMaxFiles' must not be negative")
	}
	if conf.Linking && !conf.Split {
		return fmt.Errorf("'linking' requires 'split'")
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	return jsonwrapper.Unmarshal(b, (*alias)(conf))
}

// CuePolicyFor returns the cue policy of a track type.
func (conf *Conf) CuePolicyFor(typ cluster.TrackType) cluster.CuePolicy {
	switch typ {
	case cluster.TrackTypeVideo:
		return cluster.CuePolicy(conf.VideoCues)

	case cluster.TrackTypeAudio:
		return cluster.CuePolicy(conf.AudioCues)
	}
	return cluster.CuePolicy(conf.SubtitleCues)
}
