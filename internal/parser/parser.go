package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Many telemetry feeds have no integer type on the wire and serialize every number as a float.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseIntFromFloat parses a string that may be an integer or float into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// parseBoolFlag parses the "0"/"1" flags feeds send for booleans. "true" and
// "false" are accepted as well since some feed scripts stringify booleans.
func parseBoolFlag(s string) (bool, error) {
	switch s {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("parseBoolFlag: %q is not a valid flag", s)
}

// Parser provides pure []string -> core struct conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger

	// serverVersion is static; feedVersion is re-announced at each feed
	// handshake, so reads go through the mutex.
	mu            sync.RWMutex
	feedVersion   string
	serverVersion string
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger, feedVersion, serverVersion string) *Parser {
	p := &Parser{
		logger:        logger,
		feedVersion:   feedVersion,
		serverVersion: serverVersion,
	}
	return p
}

// SetFeedVersion records the version string a connecting feed announced.
func (p *Parser) SetFeedVersion(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feedVersion = v
}

func (p *Parser) versions() (feed, server string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feedVersion, p.serverVersion
}
