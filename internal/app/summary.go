package app

import (
	"strings"

	tmcfg "tidemark/internal/config"
	"tidemark/internal/logger"

	"gopkg.in/yaml.v3"
)

// printStartupSummary dumps the effective (defaulted, validated) config once
// at startup so a log reader can reconstruct exactly what this process ran
// with. Secrets are redacted.
func printStartupSummary(cfg *tmcfg.Config) {
	redacted := *cfg
	if redacted.News.AuthToken != "" {
		redacted.News.AuthToken = "***"
	}
	out, err := yaml.Marshal(map[string]any{
		"app":            redacted.App,
		"universe":       redacted.Universe,
		"slot":           redacted.Slot,
		"momentum":       redacted.Momentum,
		"microstructure": redacted.Microstructure,
		"regime":         redacted.Regime,
		"news":           redacted.News,
		"risk":           redacted.Risk,
		"storage":        redacted.Storage,
		"binance":        redacted.Binance,
	})
	if err != nil {
		logger.Warnf("startup summary: %v", err)
		return
	}
	logger.InfoBlock("Effective configuration:\n" + strings.TrimRight(string(out), "\n"))
}
