package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"bundlectl/internal/bundle"
	"bundlectl/internal/download"
	"bundlectl/internal/logx"
	"bundlectl/internal/toolcache"
)

// DefaultToolName is the cache namespace for bundles.
const DefaultToolName = "CodeQL"

// Config tunes an Installer.
type Config struct {
	ToolName       string
	TempRoot       string
	ReleaseBaseURL string
	StreamExtract  bool
	StreamFallback bool
	MinimumVersion string
}

// Reporter receives stage updates keyed by locator.
type Reporter interface {
	Stage(locator string, stage Stage, detail string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(locator string, stage Stage, detail string)

func (f ReporterFunc) Stage(locator string, stage Stage, detail string) { f(locator, stage, detail) }

type nopReporter struct{}

func (nopReporter) Stage(string, Stage, string) {}

// Installer provisions bundles: resolve, consult the cache, and download and
// extract on a miss.
type Installer struct {
	cache    toolcache.Cache
	client   *download.Client
	logger   logx.Logger
	cfg      Config
	reporter Reporter
	newID    func() string
}

// NewInstaller wires an Installer from its collaborators.
func NewInstaller(cache toolcache.Cache, client *download.Client, logger logx.Logger, cfg Config) *Installer {
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.ToolName == "" {
		cfg.ToolName = DefaultToolName
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = filepath.Join(os.TempDir(), "bundlectl")
	}
	return &Installer{
		cache:    cache,
		client:   client,
		logger:   logger,
		cfg:      cfg,
		reporter: nopReporter{},
		newID:    uuid.NewString,
	}
}

// WithReporter returns a copy of the installer that reports stages to r.
func (i *Installer) WithReporter(r Reporter) *Installer {
	clone := *i
	if r == nil {
		r = nopReporter{}
	}
	clone.reporter = r
	return &clone
}

// ToolName is the cache namespace used by this installer.
func (i *Installer) ToolName() string { return i.cfg.ToolName }

// Acquire returns a local path to the bundle named by req.Locator. A cache
// hit performs no network access. Temporary archives and partial
// extractions are removed on every exit path.
func (i *Installer) Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error) {
	report := func(stage Stage, detail string) { i.reporter.Stage(req.Locator, stage, detail) }

	result, err := i.acquire(ctx, req, report)
	if err != nil {
		report(StageError, err.Error())
		return AcquireResult{}, err
	}
	report(StageComplete, result.Path)
	return result, nil
}

func (i *Installer) acquire(ctx context.Context, req AcquireRequest, report func(Stage, string)) (AcquireResult, error) {
	report(StageResolving, "")
	spec, err := bundle.Resolve(req.Locator, i.logger)
	if err != nil {
		return AcquireResult{}, err
	}
	result := AcquireResult{
		ToolName:        i.cfg.ToolName,
		Locator:         req.Locator,
		RawVersion:      spec.RawVersion,
		CanonicalSemver: spec.CanonicalSemver,
	}
	i.warnIfBelowMinimum(spec)

	if path, ok := i.cache.Find(i.cfg.ToolName, spec.CanonicalSemver); ok {
		i.logger.Info("Found CodeQL tools version %s in the toolcache.", spec.CanonicalSemver)
		report(StageCached, spec.CanonicalSemver)
		result.Path = path
		result.Source = SourceCache
		return result, nil
	}
	i.logger.Debug("CodeQL tools version %s not found in the toolcache.", spec.CanonicalSemver)

	downloadURL := req.Locator
	if !isLocatorURL(downloadURL) {
		downloadURL = releaseURL(i.cfg.ReleaseBaseURL, bundle.TagName(spec.RawVersion), i.cfg.StreamExtract)
	}
	method, err := download.InferCompressionMethod(downloadURL)
	if err != nil {
		return AcquireResult{}, &bundle.ConfigurationError{Message: err.Error()}
	}

	authorization := req.Authorization
	if hasTokenParam(downloadURL) {
		i.logger.Debug("Tools URL carries a token parameter. Not sending an authorization header.")
		authorization = ""
	}

	tempRoot := req.TempRoot
	if tempRoot == "" {
		tempRoot = i.cfg.TempRoot
	}
	extractDir := filepath.Join(tempRoot, i.newID())

	report(StageDownloading, download.SanitizeURL(downloadURL))
	extraction, err := i.client.DownloadAndExtract(ctx, download.Request{
		URL:           downloadURL,
		Authorization: authorization,
		Headers:       req.ExtraHeaders,
	}, method, extractDir, download.Options{
		TempRoot:       tempRoot,
		Stream:         i.cfg.StreamExtract,
		StreamFallback: i.cfg.StreamFallback,
		OnExtract:      func() { report(StageExtracting, string(method)) },
	})
	if err != nil {
		return AcquireResult{}, err
	}

	report(StageStoring, spec.CanonicalSemver)
	path, err := i.cache.Store(ctx, extractDir, i.cfg.ToolName, spec.CanonicalSemver)
	if err != nil {
		if rmErr := os.RemoveAll(extractDir); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			i.logger.Warning("Failed to clean up %s: %v", extractDir, rmErr)
		}
		return AcquireResult{}, fmt.Errorf("store bundle %s: %w", spec.CanonicalSemver, err)
	}

	extraction.ExtractedPath = path
	result.Path = path
	result.Source = SourceDownload
	result.Extraction = &extraction
	return result, nil
}

func (i *Installer) warnIfBelowMinimum(spec bundle.ToolSpecifier) {
	if i.cfg.MinimumVersion == "" {
		return
	}
	if !bundle.MeetsMinimum(spec.CanonicalSemver, i.cfg.MinimumVersion) {
		i.logger.Warning("CodeQL bundle %s is older than the configured minimum version %s.", spec.CanonicalSemver, i.cfg.MinimumVersion)
	}
}

// StatusFor converts an acquisition outcome into a display Status.
func (i *Installer) StatusFor(locator string, res AcquireResult, err error) Status {
	st := Status{
		Tool:    i.cfg.ToolName,
		Locator: locator,
		Minimum: i.cfg.MinimumVersion,
	}
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Version = res.RawVersion
	st.Semver = res.CanonicalSemver
	st.Source = res.Source
	st.Path = res.Path
	st.Satisfied = bundle.MeetsMinimum(res.CanonicalSemver, i.cfg.MinimumVersion)
	if !st.Satisfied {
		st.Notes = append(st.Notes, fmt.Sprintf("older than minimum %s", i.cfg.MinimumVersion))
	}
	if res.Extraction != nil {
		rep := res.Extraction.Report()
		st.Report = &rep
		if res.Extraction.Streamed {
			st.Notes = append(st.Notes, "streamed")
		}
	}
	return st
}
