package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lapline/lapline/internal/geo"
	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

// ParseCheckpoint parses checkpoint placement data. The two corner positions
// may arrive in any orientation; the bounds are normalized on construction.
//
// Args: [checkpointID, name, cornerA, cornerB, order, isStartFinish, active?]
func (p *Parser) ParseCheckpoint(data []string) (core.Checkpoint, error) {
	var checkpoint core.Checkpoint

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	// check if we have enough data
	if len(data) < 6 {
		return checkpoint, fmt.Errorf("insufficient data fields: got %d, need 6", len(data))
	}

	// parse checkpoint id
	checkpointID, err := parseUintFromFloat(data[0])
	if err != nil {
		return checkpoint, fmt.Errorf("error converting checkpoint id to uint: %w", err)
	}
	checkpoint.ID = uint16(checkpointID)

	checkpoint.Name = data[1]

	// parse corner positions from feed strings
	cornerA, err := p.parsePositionArg(data[2])
	if err != nil {
		return checkpoint, fmt.Errorf("error converting corner A to position: %w", err)
	}
	cornerB, err := p.parsePositionArg(data[3])
	if err != nil {
		return checkpoint, fmt.Errorf("error converting corner B to position: %w", err)
	}
	checkpoint.Bounds = geometry.NewBox3(cornerA, cornerB)

	// parse order
	order, err := parseIntFromFloat(data[4])
	if err != nil {
		return checkpoint, fmt.Errorf("error converting order to int: %w", err)
	}
	checkpoint.Order = int32(order)

	isStartFinish, err := parseBoolFlag(data[5])
	if err != nil {
		return checkpoint, fmt.Errorf("error converting isStartFinish to bool: %w", err)
	}
	checkpoint.IsStartFinish = isStartFinish

	// active is optional and defaults to true
	checkpoint.Active = true
	if len(data) > 6 {
		active, err := parseBoolFlag(data[6])
		if err != nil {
			return checkpoint, fmt.Errorf("error converting active to bool: %w", err)
		}
		checkpoint.Active = active
	}

	p.logger.Debug("Parsed checkpoint data",
		"checkpointID", checkpoint.ID,
		"name", checkpoint.Name,
		"order", checkpoint.Order,
		"isStartFinish", checkpoint.IsStartFinish)

	return checkpoint, nil
}

// ParseCheckpointDelete parses a checkpoint removal command.
// Args: [checkpointID]
func (p *Parser) ParseCheckpointDelete(data []string) (uint16, error) {
	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 1 {
		return 0, fmt.Errorf("insufficient data fields: got %d, need 1", len(data))
	}

	checkpointID, err := parseUintFromFloat(data[0])
	if err != nil {
		return 0, fmt.Errorf("error converting checkpoint id to uint: %w", err)
	}
	return uint16(checkpointID), nil
}

// ParseCheckpointActive parses a checkpoint activation toggle.
// Args: [checkpointID, active]
func (p *Parser) ParseCheckpointActive(data []string) (uint16, bool, error) {
	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 2 {
		return 0, false, fmt.Errorf("insufficient data fields: got %d, need 2", len(data))
	}

	checkpointID, err := parseUintFromFloat(data[0])
	if err != nil {
		return 0, false, fmt.Errorf("error converting checkpoint id to uint: %w", err)
	}

	active, err := parseBoolFlag(data[1])
	if err != nil {
		return 0, false, fmt.Errorf("error converting active to bool: %w", err)
	}

	return uint16(checkpointID), active, nil
}

// parsePositionArg converts a feed position string "[x,y,z]" to a Position3D.
// Parse failures are logged with the raw value since malformed positions are
// the most common feed-side bug.
func (p *Parser) parsePositionArg(arg string) (core.Position3D, error) {
	pos := strings.TrimPrefix(arg, "[")
	pos = strings.TrimSuffix(pos, "]")
	point, err := geo.Position3DFromString(pos)
	if err != nil {
		jsonData, _ := json.Marshal(arg)
		p.logger.Error("Error converting position string to Point",
			"error", err,
			"data", string(jsonData))
		return point, err
	}
	return point, nil
}
