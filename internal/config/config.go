// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config implements the global config.json model of spec §6.4:
// load/save with the same atomic temp-file-then-rename discipline the
// Registry uses, plus the get/set key paths the `config` command exposes.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/downloader"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
)

// CleanStrategy is one of the three eviction policies config.json may name
// (spec §6.4).
type CleanStrategy string

const (
	CleanUnreferenced CleanStrategy = "unreferenced"
	CleanUnused       CleanStrategy = "unused"
	CleanManual       CleanStrategy = "manual"
)

// CurrentVersion is written into every newly-created config.json.
const CurrentVersion = "1"

const (
	defaultUnusedDays    = 30
	defaultConcurrency   = 4
	defaultLogLevel      = "info"
	defaultCleanStrategy = CleanUnreferenced
)

// Proxy mirrors downloader.ProxyConfig for JSON persistence; config.json's
// "proxy" key is optional, so this is only ever non-nil when the user has
// set one.
type Proxy struct {
	HTTP    string `json:"http,omitempty"`
	HTTPS   string `json:"https,omitempty"`
	NoProxy string `json:"noProxy,omitempty"`
}

// ToDownloader converts p into the type internal/downloader expects,
// returning the zero value if p is nil.
func (p *Proxy) ToDownloader() downloader.ProxyConfig {
	if p == nil {
		return downloader.ProxyConfig{}
	}
	return downloader.ProxyConfig{HTTP: p.HTTP, HTTPS: p.HTTPS, NoProxy: p.NoProxy}
}

// Config is the decoded form of config.json (spec §6.4).
type Config struct {
	Version       string        `json:"version"`
	Initialized   bool          `json:"initialized"`
	StorePath     string        `json:"storePath"`
	CleanStrategy CleanStrategy `json:"cleanStrategy"`
	UnusedDays    int           `json:"unusedDays"`
	MaxStoreSize  int64         `json:"maxStoreSize,omitempty"`
	AutoDownload  bool          `json:"autoDownload"`
	Concurrency   int           `json:"concurrency"`
	LogLevel      string        `json:"logLevel"`
	Proxy         *Proxy        `json:"proxy,omitempty"`

	path string
}

// Default returns a new Config with storePath set under home and every
// other field at its documented default, not yet marked initialized.
func Default(home string) *Config {
	return &Config{
		Version:       CurrentVersion,
		Initialized:   false,
		StorePath:     filepath.Join(home, "store"),
		CleanStrategy: defaultCleanStrategy,
		UnusedDays:    defaultUnusedDays,
		AutoDownload:  true,
		Concurrency:   defaultConcurrency,
		LogLevel:      defaultLogLevel,
		path:          filepath.Join(home, "config.json"),
	}
}

// Path returns the config.json path this Config was loaded from or will be
// saved to.
func (c *Config) Path() string { return c.path }

// Load reads and decodes config.json from home, returning a
// *tderrors.Error with KindNotInitialized if it does not exist.
func Load(home string) (*Config, error) {
	path := filepath.Join(home, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tderrors.NotInitialized()
		}
		return nil, errors.Wrap(err, "reading config.json")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, tderrors.New(tderrors.KindConfigError, "config.json is not valid JSON: "+err.Error())
	}
	c.path = path
	return &c, nil
}

// Save persists c atomically: write to config.json.tmp, fsync, rename,
// matching internal/registry's Save discipline.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no path; was it loaded via Load or Default")
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating config temp file")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encoding config.json")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "fsyncing config temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing config temp file")
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errors.Wrap(err, "renaming config.json into place")
	}
	return nil
}

// Get returns the string form of one config key, for `tanmidock config get
// <key>`.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "storePath":
		return c.StorePath, nil
	case "cleanStrategy":
		return string(c.CleanStrategy), nil
	case "unusedDays":
		return strconv.Itoa(c.UnusedDays), nil
	case "maxStoreSize":
		return strconv.FormatInt(c.MaxStoreSize, 10), nil
	case "autoDownload":
		return strconv.FormatBool(c.AutoDownload), nil
	case "concurrency":
		return strconv.Itoa(c.Concurrency), nil
	case "logLevel":
		return c.LogLevel, nil
	default:
		return "", tderrors.New(tderrors.KindUsageError, "unknown config key "+key)
	}
}

// Set parses value and applies it to one config key, for `tanmidock config
// set <key> <value>`. It does not Save; callers persist afterward.
func (c *Config) Set(key, value string) error {
	switch key {
	case "storePath":
		c.StorePath = value
	case "cleanStrategy":
		switch CleanStrategy(value) {
		case CleanUnreferenced, CleanUnused, CleanManual:
			c.CleanStrategy = CleanStrategy(value)
		default:
			return tderrors.New(tderrors.KindUsageError, "cleanStrategy must be one of unreferenced, unused, manual")
		}
	case "unusedDays":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return tderrors.New(tderrors.KindUsageError, "unusedDays must be a non-negative integer")
		}
		c.UnusedDays = n
	case "maxStoreSize":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return tderrors.New(tderrors.KindUsageError, "maxStoreSize must be a non-negative integer")
		}
		c.MaxStoreSize = n
	case "autoDownload":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return tderrors.New(tderrors.KindUsageError, "autoDownload must be a boolean")
		}
		c.AutoDownload = b
	case "concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return tderrors.New(tderrors.KindUsageError, "concurrency must be a positive integer")
		}
		c.Concurrency = n
	case "logLevel":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return tderrors.New(tderrors.KindUsageError, "logLevel must be one of debug, info, warn, error")
		}
	default:
		return tderrors.New(tderrors.KindUsageError, "unknown config key "+key)
	}
	return nil
}
