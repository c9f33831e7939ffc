package bundle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coreos/go-semver/semver"

	"bundlectl/internal/logx"
)

const tagPrefix = "codeql-bundle-"

var (
	// A trailing slash is required so the last match is the release tag
	// rather than a repository or asset name.
	urlTagRegex = regexp.MustCompile(`/(codeql-bundle-[^/]*)/`)
	tagRegex    = regexp.MustCompile(`^codeql-bundle-(.+)$`)
)

// ConfigurationError reports a malformed locator or version. It is never
// worth retrying.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// ToolSpecifier identifies the bundle requested by one acquisition attempt.
type ToolSpecifier struct {
	SourceLocator   string
	RawVersion      string
	CanonicalSemver string
}

// Resolve parses the locator and normalizes its version.
func Resolve(locator string, logger logx.Logger) (ToolSpecifier, error) {
	raw, err := ParseVersionFromLocator(locator)
	if err != nil {
		return ToolSpecifier{}, err
	}
	canonical, err := NormalizeToSemver(raw, logger)
	if err != nil {
		return ToolSpecifier{}, err
	}
	return ToolSpecifier{SourceLocator: locator, RawVersion: raw, CanonicalSemver: canonical}, nil
}

// ParseVersionFromLocator extracts the version from a bundle download URL
// (…/codeql-bundle-<version>/…) or a release tag (codeql-bundle-<version>).
func ParseVersionFromLocator(locator string) (string, error) {
	trimmed := strings.TrimSpace(locator)

	tag := ""
	if matches := urlTagRegex.FindAllStringSubmatch(trimmed, -1); len(matches) > 0 {
		tag = matches[len(matches)-1][1]
	} else if !strings.Contains(trimmed, "/") {
		tag = trimmed
	}

	if m := tagRegex.FindStringSubmatch(tag); m != nil {
		return m[1], nil
	}
	return "", &ConfigurationError{
		Message: fmt.Sprintf("Malformed tools url: %s. Version could not be inferred", locator),
	}
}

// NormalizeToSemver returns raw unchanged when it is already semantic
// version syntax, and otherwise treats it as the pre-release 0.0.0-<raw>.
// A dotted triple such as 20200601.0.0 is valid semver, while 20200601 and
// 20200601.0 are not.
func NormalizeToSemver(raw string, logger logx.Logger) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ConfigurationError{Message: "Bundle version is empty."}
	}
	if v, ok := strictSemver(cleanVersion(trimmed)); ok {
		return v, nil
	}

	if logger != nil {
		logger.Debug("Bundle version %s is not in SemVer format. Will treat it as pre-release 0.0.0-%s.", trimmed, trimmed)
	}
	prerelease := "0.0.0-" + trimmed
	v, ok := strictSemver(prerelease)
	if !ok {
		return "", &ConfigurationError{
			Message: fmt.Sprintf("Bundle version %s is not in SemVer format.", prerelease),
		}
	}
	return v, nil
}

// strictSemver accepts s only when it is already canonical semver. The
// parser tolerates leading zeros, so 01.2.3 would otherwise collide with
// 1.2.3.
func strictSemver(s string) (string, bool) {
	v, err := semver.NewVersion(s)
	if err != nil || v.String() != s {
		return "", false
	}
	if v.PreRelease == "" {
		return s, true
	}
	for _, id := range strings.Split(string(v.PreRelease), ".") {
		if len(id) > 1 && id[0] == '0' && strings.Trim(id, "0123456789") == "" {
			return "", false
		}
	}
	return s, true
}

// MeetsMinimum reports whether version is at least minimum. An empty minimum
// is always satisfied; unparseable versions never are.
func MeetsMinimum(version, minimum string) bool {
	if strings.TrimSpace(minimum) == "" {
		return true
	}
	v, err := semver.NewVersion(cleanVersion(version))
	if err != nil {
		return false
	}
	m, err := semver.NewVersion(cleanVersion(minimum))
	if err != nil {
		return false
	}
	return !v.LessThan(*m)
}

// TagName returns the release tag for a bundle version.
func TagName(rawVersion string) string {
	return tagPrefix + rawVersion
}

func cleanVersion(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.TrimPrefix(v, "=")
	return strings.TrimPrefix(v, "v")
}
