package tools

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
)

// DefaultReleaseBaseURL hosts the published bundle releases.
const DefaultReleaseBaseURL = "https://github.com/github/codeql-action/releases/download"

// platformName maps the running OS to the bundle's asset suffix.
func platformName() string {
	switch runtime.GOOS {
	case "darwin":
		return "osx64"
	case "windows":
		return "win64"
	default:
		return "linux64"
	}
}

// isLocatorURL reports whether the locator is a URL rather than a bare tag.
func isLocatorURL(locator string) bool {
	return strings.Contains(locator, "://")
}

// releaseURL builds the download URL for a release tag. zstd assets are
// chosen when preferZstd is set.
func releaseURL(baseURL, tag string, preferZstd bool) string {
	if baseURL == "" {
		baseURL = DefaultReleaseBaseURL
	}
	ext := ".tar.gz"
	if preferZstd {
		ext = ".tar.zst"
	}
	return fmt.Sprintf("%s/%s/codeql-bundle-%s%s", strings.TrimRight(baseURL, "/"), tag, platformName(), ext)
}

// hasTokenParam reports whether the URL already authenticates through a
// token query parameter.
func hasTokenParam(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	return u.Query().Has("token")
}
