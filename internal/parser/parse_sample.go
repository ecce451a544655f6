package parser

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/pkg/core"
)

// ParseSample parses one position sample. Every field the crossing detector
// depends on (entity id, position, capture frame) parses strictly; a sample
// that fails here must be rejected, never coerced to a default position.
//
// Args: [entityID, position, captureFrame, bearing, speed, velocity, aux?]
func (p *Parser) ParseSample(data []string) (core.Sample, error) {
	var sample core.Sample

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	// check if we have enough data
	if len(data) < 6 {
		return sample, fmt.Errorf("insufficient data fields: got %d, need 6", len(data))
	}

	// parse entity id
	entityID, err := parseUintFromFloat(data[0])
	if err != nil {
		return sample, fmt.Errorf("error converting entity id to uint: %w", err)
	}
	sample.EntityID = uint16(entityID)

	// parse pos from a feed string
	position, err := p.parsePositionArg(data[1])
	if err != nil {
		return sample, fmt.Errorf("error converting position to point: %w", err)
	}
	if !isFinite(position.X) || !isFinite(position.Y) || !isFinite(position.Z) {
		return sample, fmt.Errorf("position component is not finite: %q", data[1])
	}
	sample.Position = position

	// parse capture frame
	captureFrame, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return sample, fmt.Errorf("error converting capture frame to int: %w", err)
	}
	sample.CaptureFrame = uint(captureFrame)

	// parse bearing
	bearing, err := parseUintFromFloat(data[3])
	if err != nil {
		return sample, fmt.Errorf("error converting bearing to uint: %w", err)
	}
	sample.Bearing = uint16(bearing)

	// parse speed
	speed, err := strconv.ParseFloat(data[4], 64)
	if err != nil {
		return sample, fmt.Errorf("error converting speed to float: %w", err)
	}
	sample.Speed = float32(speed)

	// velocity and aux are carried through untouched
	sample.Velocity = data[5]
	if len(data) > 6 {
		sample.Aux = data[6]
	}

	sample.Time = time.Now()

	return sample, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
