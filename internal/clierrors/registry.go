package clierrors

import (
	"errors"
	"fmt"
	"runtime"
)

// Registry holds categories in match order. The first category that
// classifies a failure wins.
type Registry struct {
	categories []Category
	goos       string
	goarch     string
}

// NewRegistry validates categories and keeps them in the given order. Every
// category needs a unique name and at least one required substring, since an
// empty substring list would classify every message.
func NewRegistry(categories ...Category) (*Registry, error) {
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: name is required", i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("category %s: duplicate name", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.RequiredSubstrings) == 0 {
			return nil, fmt.Errorf("category %s: at least one required substring is needed", c.Name)
		}
	}
	return &Registry{
		categories: append([]Category(nil), categories...),
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
	}, nil
}

// DefaultRegistry returns the known CLI configuration errors.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultCategories()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Categories returns a copy of the registered categories in order.
func (r *Registry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// Lookup finds a category by name.
func (r *Registry) Lookup(name string) (Category, bool) {
	for _, c := range r.categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Match returns the first category that classifies the failure.
func (r *Registry) Match(message string, exitCode *int) (Category, bool) {
	for _, c := range r.categories {
		if Classify(c, message, exitCode) {
			return c, true
		}
	}
	return Category{}, false
}

// ConfigurationError is a CLI failure recognised as a user configuration
// problem.
type ConfigurationError struct {
	Category string
	Message  string
	Err      error
}

func (e *ConfigurationError) Error() string { return e.Message }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Wrap converts a classified *CLIError into a *ConfigurationError carrying the
// rendered message. Both the summarised message and the raw stderr are
// checked. Unclassified errors are returned unchanged unless the host
// platform is unsupported.
func (r *Registry) Wrap(err error) error {
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		return err
	}

	cat, ok := r.Match(cliErr.Error(), cliErr.ExitCode)
	if !ok {
		cat, ok = r.Match(cliErr.Stderr, cliErr.ExitCode)
	}
	if ok {
		return &ConfigurationError{Category: cat.Name, Message: Render(cat, cliErr.Error()), Err: err}
	}

	if !SupportedPlatform(r.goos, r.goarch) {
		return &ConfigurationError{
			Category: "UnsupportedPlatform",
			Message: fmt.Sprintf("CodeQL CLI does not support the platform/architecture combination of %s/%s (see https://codeql.github.com/docs/codeql-overview/system-requirements).",
				r.goos, r.goarch),
			Err: err,
		}
	}
	return err
}

// SupportedPlatform reports whether the CodeQL CLI ships for goos/goarch.
func SupportedPlatform(goos, goarch string) bool {
	switch goos {
	case "linux", "windows":
		return goarch == "amd64"
	case "darwin":
		return goarch == "amd64" || goarch == "arm64"
	default:
		return false
	}
}

func defaultCategories() []Category {
	return []Category{
		{
			Name:               "IncompatibleWithActionVersion",
			RequiredSubstrings: []string{"is not compatible with this CodeQL CLI"},
		},
		{
			Name:               "InitCalledTwice",
			RequiredSubstrings: []string{"Refusing to create databases", "exists and is not an empty directory"},
			ReplacementMessage: stringPtr(`Is the "init" action called twice in the same job?`),
			AppendOriginal:     boolPtr(true),
		},
		{
			Name:               "InvalidSourceRoot",
			RequiredSubstrings: []string{"Invalid source root"},
		},
		{
			Name:               "NoJavaScriptTypeScriptCodeFound",
			ExpectedExitCode:   intPtr(32),
			RequiredSubstrings: []string{"No JavaScript or TypeScript code found."},
			ReplacementMessage: stringPtr("No code found during the build. Please see: " +
				"https://gh.io/troubleshooting-code-scanning/no-source-code-seen-during-build"),
			AppendOriginal: boolPtr(false),
		},
		{
			Name:               "NoSourceCodeSeen",
			RequiredSubstrings: []string{"CodeQL detected code written in", "but could not process any of it"},
		},
		{
			Name:               "NoSupportedLanguageCode",
			RequiredSubstrings: []string{"CodeQL did not detect any code written in languages supported by CodeQL"},
		},
		{
			Name:               "AutobuildError",
			RequiredSubstrings: []string{"We were unable to automatically build your code"},
		},
		{
			Name:               "CouldNotCreateTempDir",
			RequiredSubstrings: []string{"Could not create temp directory"},
		},
		{
			Name:               "ExternalRepositoryCloneFailed",
			RequiredSubstrings: []string{"Failed to clone external Git repository"},
		},
		{
			Name:               "GradleBuildFailed",
			RequiredSubstrings: []string{"[autobuild] FAILURE: Build failed with an exception."},
		},
		{
			Name:               "MavenBuildFailed",
			RequiredSubstrings: []string{"[autobuild] [ERROR] Failed to execute goal"},
		},
		{
			Name:               "SwiftBuildFailed",
			RequiredSubstrings: []string{"[autobuilder/build] [build-command-failed] `autobuild` failed to run the build command"},
		},
		{
			Name:               "InvalidConfigFile",
			RequiredSubstrings: []string{"Config file", "is not valid"},
		},
		{
			Name:               "EmptyConfigFile",
			RequiredSubstrings: []string{"The supplied config file is empty"},
		},
		{
			Name:               "InvalidExternalRepoSpecifier",
			RequiredSubstrings: []string{"Specifier for external repository is invalid"},
		},
		{
			Name:               "NoBuildCommandAutodetected",
			RequiredSubstrings: []string{"Could not auto-detect a suitable build method"},
		},
		{
			Name:               "NoBuildMethodAutodetected",
			RequiredSubstrings: []string{"Could not detect a suitable build command for the source checkout"},
		},
		{
			Name:               "NoSupportedBuildCommandSucceeded",
			RequiredSubstrings: []string{"No supported build command succeeded"},
		},
		{
			Name:               "NoSupportedBuildSystemDetected",
			RequiredSubstrings: []string{"No supported build system detected"},
		},
		{
			Name:               "OutOfMemory",
			RequiredSubstrings: []string{"CodeQL is out of memory."},
			ReplacementMessage: stringPtr(outOfMemoryOrDiskHelp),
		},
		{
			Name:               "OutOfMemoryOrDisk",
			RequiredSubstrings: []string{"No space left on device"},
			ReplacementMessage: stringPtr(outOfMemoryOrDiskHelp),
		},
		{
			Name:               "PackCannotBeFound",
			RequiredSubstrings: []string{"Query pack", "cannot be found. Check the spelling of the pack."},
		},
		{
			Name:               "PackMissingAuth",
			RequiredSubstrings: []string{"Do you need to specify a token to authenticate to the registry?"},
		},
		{
			Name:               "UnsupportedBuildMode",
			RequiredSubstrings: []string{"does not support the", "build mode. Please try using one of the following build modes instead"},
		},
	}
}

const outOfMemoryOrDiskHelp = "CodeQL ran out of memory or disk space. For more information, see " +
	"https://gh.io/troubleshooting-code-scanning/out-of-disk-or-memory"
