package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xplshn/nhla/pkg/cli"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatImplicitLocals Feature = iota
	FeatHexLiterals
	FeatVariableOffsets
	FeatIndexVariable
	FeatCount
)

type Warning int

const (
	WarnImplicitLocal Warning = iota
	WarnArgCount
	WarnUnreachableCode
	WarnMissingEndproc
	WarnOverflow
	WarnPedantic
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	WordSize   int
	MaxParams  int
	CodeBase   int
	DataBase   int
	IndexName  string
	ResultName string

	BackendName   string
	BackendTarget string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		WordSize:   2,
		MaxParams:  4,
		CodeBase:   0x1000,
		DataBase:   0x2000,
		IndexName:  "index",
		ResultName: "$return",
	}

	features := map[Feature]Info{
		FeatImplicitLocals:  {"implicit-locals", true, "Create a local on its first direct store (`x+1>y`)."},
		FeatHexLiterals:     {"hex-literals", true, "Recognize `0x` hexadecimal constants."},
		FeatVariableOffsets: {"variable-offsets", true, "Allow variables as indirection offsets (`a[i]`, `a?i`)."},
		FeatIndexVariable:   {"index-variable", true, "Store the loop index of `for` into a variable named `index`."},
	}

	warnings := map[Warning]Info{
		WarnImplicitLocal:   {"implicit-local", false, "Warn when a local is created by a store."},
		WarnArgCount:        {"arg-count", true, "Warn when a call passes a different number of arguments than declared."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after `endproc`."},
		WarnMissingEndproc:  {"missing-endproc", true, "Warn when a procedure has no `endproc`."},
		WarnOverflow:        {"overflow", true, "Warn when a constant does not fit in a word."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget selects the backend and, for QBE, the target ABI.
func (c *Config) SetTarget(goos, goarch, target string) {
	backend, sub, _ := strings.Cut(target, "/")
	if backend == "" {
		backend = "listing"
	}
	c.BackendName = backend

	if backend != "qbe" {
		c.BackendTarget = sub
		return
	}
	if sub == "" {
		c.BackendTarget = libqbe.DefaultTarget(goos, goarch)
		fmt.Fprintf(os.Stderr, "nhla: info: no target specified, defaulting to host target '%s'\n", c.BackendTarget)
	} else {
		c.BackendTarget = sub
		fmt.Fprintf(os.Stderr, "nhla: info: using specified target '%s'\n", c.BackendTarget)
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool {
	return c.Warnings[wt].Enabled || (wt != WarnPedantic && c.Warnings[WarnPedantic].Enabled)
}

// MaxWord is the largest unsigned value a word holds.
func (c *Config) MaxWord() int { return 1<<(8*c.WordSize) - 1 }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F style flags; -Wall and -Wno-all go first so that
// individual flags can override them.
func (c *Config) ProcessFlags(flags []string) {
	for _, name := range flags {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	}
	for _, name := range flags {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	}
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// flags for every warning and feature. The returned entries are indexed by
// Warning and Feature respectively.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) ([]cli.FlagGroupEntry, []cli.FlagGroupEntry) {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := false, false
		warningFlags[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "W", Usage: info.Description, Default: info.Enabled, Enabled: &enabled, Disabled: &disabled}
	}
	featureFlags := make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := false, false
		featureFlags[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "F", Usage: info.Description, Default: info.Enabled, Enabled: &enabled, Disabled: &disabled}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature", "Available Features:", featureFlags)
	return warningFlags, featureFlags
}

// ApplyFlagGroups copies the state of flags registered by SetupFlagGroups.
func (c *Config) ApplyFlagGroups(warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i, entry := range warningFlags {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range featureFlags {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}

type fileConfig struct {
	WordSize  *int            `toml:"word_size"`
	MaxParams *int            `toml:"max_params"`
	CodeBase  *int            `toml:"code_base"`
	DataBase  *int            `toml:"data_base"`
	IndexName *string         `toml:"index_name"`
	Target    *string         `toml:"target"`
	Features  map[string]bool `toml:"features"`
	Warnings  map[string]bool `toml:"warnings"`
}

// LoadFile applies overrides from a TOML file. It returns the target named
// in the file, or "" when the file does not set one.
func (c *Config) LoadFile(path string) (string, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return "", fmt.Errorf("could not read config '%s': %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return "", fmt.Errorf("config '%s': unknown key '%s'", path, undecoded[0])
	}
	return c.apply(&fc)
}

// Decode is LoadFile for an in-memory document.
func (c *Config) Decode(doc string) (string, error) {
	var fc fileConfig
	md, err := toml.Decode(doc, &fc)
	if err != nil {
		return "", err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return "", fmt.Errorf("unknown key '%s'", undecoded[0])
	}
	return c.apply(&fc)
}

func (c *Config) apply(fc *fileConfig) (string, error) {
	if fc.WordSize != nil {
		if *fc.WordSize != 1 && *fc.WordSize != 2 {
			return "", fmt.Errorf("word_size must be 1 or 2, got %d", *fc.WordSize)
		}
		c.WordSize = *fc.WordSize
	}
	if fc.MaxParams != nil {
		if *fc.MaxParams < 0 {
			return "", fmt.Errorf("max_params must not be negative")
		}
		c.MaxParams = *fc.MaxParams
	}
	if fc.CodeBase != nil {
		c.CodeBase = *fc.CodeBase
	}
	if fc.DataBase != nil {
		c.DataBase = *fc.DataBase
	}
	if fc.IndexName != nil {
		c.IndexName = strings.ToLower(*fc.IndexName)
	}
	for name, on := range fc.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return "", fmt.Errorf("unknown feature '%s'", name)
		}
		c.SetFeature(ft, on)
	}
	for name, on := range fc.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok {
			return "", fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(wt, on)
	}
	target := ""
	if fc.Target != nil {
		target = *fc.Target
	}
	return target, nil
}
