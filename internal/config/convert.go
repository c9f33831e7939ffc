package config

import (
	"fmt"
	"regexp"

	"bundlectl/internal/clierrors"
	"bundlectl/internal/procrun"
)

// ProcessMatchers compiles the configured matchers in order.
func (c Config) ProcessMatchers() ([]procrun.Matcher, error) {
	out := make([]procrun.Matcher, 0, len(c.Matchers))
	for i, m := range c.Matchers {
		pm := procrun.Matcher{ExitCode: m.ExitCode, Message: m.Message}
		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("matcher %d: %w", i, err)
			}
			pm.Pattern = re
		}
		out = append(out, pm)
	}
	return out, nil
}

// Registry returns the built-in classifier categories followed by the
// configured ones.
func (c Config) Registry() (*clierrors.Registry, error) {
	categories := clierrors.DefaultRegistry().Categories()
	for _, cc := range c.Categories {
		categories = append(categories, clierrors.Category{
			Name:               cc.Name,
			RequiredSubstrings: cc.RequiredSubstrings,
			ExpectedExitCode:   cc.ExpectedExitCode,
			ReplacementMessage: cc.ReplacementMessage,
			AppendOriginal:     cc.AppendOriginal,
		})
	}
	return clierrors.NewRegistry(categories...)
}
