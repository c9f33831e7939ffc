package tools

import "bundlectl/internal/download"

type Source string

const (
	SourceUnknown  Source = ""
	SourceCache    Source = "cache"
	SourceDownload Source = "download"
)

// Stage names a step of an acquisition as shown by progress reporters.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageCached      Stage = "cached"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageStoring     Stage = "storing"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// AcquireRequest asks for one bundle.
type AcquireRequest struct {
	// Locator is a bundle download URL or a release tag such as
	// codeql-bundle-v2.19.0.
	Locator       string
	Authorization string
	ExtraHeaders  map[string]string
	// TempRoot overrides the installer's temporary directory.
	TempRoot string
}

// AcquireResult describes where the bundle ended up and how it got there.
type AcquireResult struct {
	ToolName        string
	Locator         string
	RawVersion      string
	CanonicalSemver string
	Path            string
	Source          Source
	// Extraction is nil when the bundle was already cached.
	Extraction *download.ExtractionResult
}

// Status captures the resolved state of an acquisition for display.
type Status struct {
	Tool      string                 `json:"tool"`
	Locator   string                 `json:"locator"`
	Version   string                 `json:"version,omitempty"`
	Semver    string                 `json:"semver,omitempty"`
	Minimum   string                 `json:"minimum,omitempty"`
	Source    Source                 `json:"source"`
	Path      string                 `json:"path,omitempty"`
	Satisfied bool                   `json:"satisfied"`
	Error     string                 `json:"error,omitempty"`
	Notes     []string               `json:"notes,omitempty"`
	Report    *download.StatusReport `json:"report,omitempty"`
}
