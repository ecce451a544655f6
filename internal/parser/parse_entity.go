package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/pkg/core"
)

// ParseEntity parses entity announcement data into an Entity plus the Team it
// belongs to. The team is zero-valued when the entity carries no team
// assignment.
//
// Args: [joinFrame, entityID, name, team, class, carNumber, isPlayer, teamColor?]
func (p *Parser) ParseEntity(data []string) (core.Entity, core.Team, error) {
	var entity core.Entity
	var team core.Team

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	// check if we have enough data
	if len(data) < 7 {
		return entity, team, fmt.Errorf("insufficient data fields: got %d, need 7", len(data))
	}

	// parse join frame
	joinFrame, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		return entity, team, fmt.Errorf("error converting join frame to int: %w", err)
	}
	entity.JoinFrame = uint(joinFrame)
	entity.JoinTime = time.Now()

	// parse entity id
	entityID, err := parseUintFromFloat(data[1])
	if err != nil {
		return entity, team, fmt.Errorf("error converting entity id to uint: %w", err)
	}
	entity.ID = uint16(entityID)

	entity.Name = data[2]
	entity.Team = data[3]
	entity.Class = data[4]

	// parse car number
	carNumber, err := parseIntFromFloat(data[5])
	if err != nil {
		return entity, team, fmt.Errorf("error converting car number to int: %w", err)
	}
	entity.CarNumber = int(carNumber)

	isPlayer, err := parseBoolFlag(data[6])
	if err != nil {
		return entity, team, fmt.Errorf("error converting isPlayer to bool: %w", err)
	}
	entity.IsPlayer = isPlayer

	if entity.Team != "" {
		team.Name = entity.Team
		if len(data) > 7 {
			team.Color = data[7]
		}
	}

	p.logger.Debug("Parsed entity data",
		"entityID", entity.ID,
		"name", entity.Name,
		"team", entity.Team)

	return entity, team, nil
}
