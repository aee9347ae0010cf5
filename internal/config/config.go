// Package config reads and writes the per-repository keshig settings stored
// as a Java properties file in the git control directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/magiconair/properties"
	"github.com/openmined/keshig/internal/utils"
)

const (
	KeyURL            = "url"
	KeyCheckThreshold = "check.threshold"
	KeyCheckTrack     = "check.track"
	KeyMovePrivileged = "move.privileged"
)

var (
	DefaultThreshold      int64 = 10 * humanize.MiByte
	DefaultPrivilegedMove       = []string{"sudo", "-n"}
)

var (
	ErrNotInitialized     = errors.New("keshig is not initialized in this repository")
	ErrAlreadyInitialized = errors.New("this repository already has keshig configuration")
)

type Config struct {
	// URL of the remote blob store. Stored for later use; nothing syncs yet.
	URL string
	// Threshold is the size in bytes from which check reports a file.
	Threshold int64
	// Track lists doublestar globs that check always reports.
	Track []string
	// PrivilegedMove is the command prefix used to retry a failed move, e.g.
	// "sudo -n". Empty disables the retry.
	PrivilegedMove []string
	Path           string
}

func Default() *Config {
	return &Config{
		Threshold:      DefaultThreshold,
		PrivilegedMove: append([]string(nil), DefaultPrivilegedMove...),
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("url is required")
	}
	if strings.ContainsAny(c.URL, "\r\n") {
		return fmt.Errorf("url %q contains a line break", c.URL)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("check threshold must be positive, got %d", c.Threshold)
	}
	return nil
}

// Save writes the config to path, replacing any existing file.
func (c *Config) Save(path string) error {
	p := properties.NewProperties()
	p.DisableExpansion = true

	set := func(key, value string) error {
		_, _, err := p.Set(key, value)
		return err
	}
	if err := set(KeyURL, c.URL); err != nil {
		return err
	}
	if err := set(KeyCheckThreshold, strconv.FormatInt(c.Threshold, 10)); err != nil {
		return err
	}
	if len(c.Track) > 0 {
		if err := set(KeyCheckTrack, strings.Join(c.Track, ",")); err != nil {
			return err
		}
	}
	if err := set(KeyMovePrivileged, strings.Join(c.PrivilegedMove, " ")); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	c.Path = path
	return nil
}

// Load reads the config at path. A missing file is ErrNotInitialized.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrNotInitialized, path)
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config read '%s': %w", path, err)
	}

	cfg := Default()
	cfg.Path = path
	cfg.URL = p.GetString(KeyURL, "")

	if v, ok := p.Get(KeyCheckThreshold); ok && strings.TrimSpace(v) != "" {
		size, err := humanize.ParseBytes(v)
		if err != nil {
			return nil, fmt.Errorf("config %s: %s: %w", path, KeyCheckThreshold, err)
		}
		cfg.Threshold = int64(size)
	}
	if v, ok := p.Get(KeyCheckTrack); ok {
		cfg.Track = splitList(v)
	}
	if v, ok := p.Get(KeyMovePrivileged); ok {
		cfg.PrivilegedMove = strings.Fields(v)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults when the
// repository has not been initialized.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotInitialized) {
		cfg = Default()
		cfg.Path = path
		return cfg, nil
	}
	return cfg, err
}

// Init writes a fresh config holding url. It refuses to touch an existing one.
func Init(path, url string) (*Config, error) {
	if utils.PathExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, path)
	}

	cfg := Default()
	cfg.URL = strings.TrimSpace(url)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
