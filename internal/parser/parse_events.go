package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lapline/lapline/internal/geo"
	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/pkg/core"
)

// ParseGeneralEvent parses general event data and returns a core GeneralEvent
func (p *Parser) ParseGeneralEvent(data []string) (core.GeneralEvent, error) {
	var thisEvent core.GeneralEvent

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 3 {
		return thisEvent, fmt.Errorf("insufficient data fields: got %d, need 3", len(data))
	}

	// get frame
	capframe, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		return thisEvent, fmt.Errorf("error converting capture frame to int: %w", err)
	}

	thisEvent.Time = time.Now()
	thisEvent.CaptureFrame = uint(capframe)
	thisEvent.Name = data[1]
	thisEvent.Message = data[2]

	// get extra event data
	if len(data) > 3 {
		err = json.Unmarshal([]byte(data[3]), &thisEvent.ExtraData)
		if err != nil {
			return thisEvent, fmt.Errorf("error unmarshalling extra data: %w", err)
		}
	}

	return thisEvent, nil
}

// ParseFeedStatus parses feed health data and returns a core FeedStatus
// Args: [frameNo, sampleRate, latencyMs, droppedSamples]
func (p *Parser) ParseFeedStatus(data []string) (core.FeedStatus, error) {
	var status core.FeedStatus

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 4 {
		return status, fmt.Errorf("insufficient data fields: got %d, need 4", len(data))
	}

	capframe, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		return status, fmt.Errorf("error converting capture frame to int: %w", err)
	}

	status.CaptureFrame = uint(capframe)
	status.Time = time.Now()

	sampleRate, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return status, fmt.Errorf("error converting sampleRate to float: %w", err)
	}
	status.SampleRate = float32(sampleRate)

	latency, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return status, fmt.Errorf("error converting latencyMs to float: %w", err)
	}
	status.LatencyMs = float32(latency)

	dropped, err := parseUintFromFloat(data[3])
	if err != nil {
		return status, fmt.Errorf("error converting droppedSamples to uint: %w", err)
	}
	status.DroppedSamples = uint32(dropped)

	return status, nil
}

// ParseTimeState parses clock sync data and returns a core TimeState
// Args: [frameNo, sessionClock]
func (p *Parser) ParseTimeState(data []string) (core.TimeState, error) {
	var timeState core.TimeState

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 2 {
		return timeState, fmt.Errorf("insufficient data fields: got %d, need 2", len(data))
	}

	capframe, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		return timeState, fmt.Errorf("error converting capture frame to int: %w", err)
	}

	timeState.CaptureFrame = uint(capframe)
	timeState.Time = time.Now()

	sessionClock, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return timeState, fmt.Errorf("error converting sessionClock to float: %w", err)
	}
	timeState.SessionClock = sessionClock

	return timeState, nil
}

// ParseTrackOutline parses display geometry for the racing line or circuit
// edge. The polyline arrives as a JSON array of [x,y] pairs.
// Args: [name, polyline]
func (p *Parser) ParseTrackOutline(data []string) (core.TrackOutline, error) {
	var outline core.TrackOutline

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 2 {
		return outline, fmt.Errorf("insufficient data fields: got %d, need 2", len(data))
	}

	outline.Name = data[0]

	points, err := geo.ParsePolylineToCore(data[1])
	if err != nil {
		return outline, fmt.Errorf("error parsing outline polyline: %w", err)
	}
	outline.Points = points

	return outline, nil
}
