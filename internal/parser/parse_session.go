package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lapline/lapline/internal/geo"
	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/pkg/core"
)

// venueJSON is the wire shape of the venue object in a :NEW:SESSION: command.
type venueJSON struct {
	VenueName   string  `json:"venueName"`
	DisplayName string  `json:"displayName"`
	Author      string  `json:"author"`
	TrackLength float32 `json:"trackLength"`
	Latitude    float32 `json:"latitude"`
	Longitude   float32 `json:"longitude"`
}

// ParseSession parses session and venue data from raw args.
// Returns parsed session + venue. NO DB operations, NO cache resets, NO callbacks.
func (p *Parser) ParseSession(data []string) (core.Session, core.Venue, error) {
	var session core.Session
	var venue core.Venue

	// fix received data
	for i, v := range data {
		data[i] = util.FixEscapeQuotes(util.TrimQuotes(v))
	}

	if len(data) < 2 {
		return session, venue, fmt.Errorf("insufficient data fields: got %d, need 2", len(data))
	}

	// unmarshal data[0] -> venue
	var vj venueJSON
	if err := json.Unmarshal([]byte(data[0]), &vj); err != nil {
		return session, venue, fmt.Errorf("error unmarshalling venue data: %w", err)
	}
	if vj.VenueName == "" {
		return session, venue, fmt.Errorf("venue field %q is missing or empty", "venueName")
	}
	venue.Name = vj.VenueName
	venue.DisplayName = vj.DisplayName
	venue.Author = vj.Author
	venue.TrackLength = vj.TrackLength
	venue.Latitude = vj.Latitude
	venue.Longitude = vj.Longitude

	// preprocess the venue location to a web mercator point
	venueLocation, err := geo.Coords3857From4326(
		float64(vj.Longitude),
		float64(vj.Latitude),
	)
	if err != nil {
		return session, venue, fmt.Errorf("error converting venue location to geopoint: %w", err)
	}
	venue.Location = geo.Position3DFromPoint(venueLocation)

	// unmarshal data[1] -> session (via temp map so the optional rules block
	// can be extracted with real errors instead of silent zero values)
	sessionTemp := map[string]any{}
	if err = json.Unmarshal([]byte(data[1]), &sessionTemp); err != nil {
		return session, venue, fmt.Errorf("error unmarshalling session data: %w", err)
	}

	getString := func(key string) (string, error) {
		v, ok := sessionTemp[key].(string)
		if !ok {
			return "", fmt.Errorf("session field %q is missing or not a string", key)
		}
		return v, nil
	}
	getFloat := func(key string) (float64, error) {
		v, ok := sessionTemp[key].(float64)
		if !ok {
			return 0, fmt.Errorf("session field %q is missing or not a number", key)
		}
		return v, nil
	}

	session.StartTime = time.Now()

	if session.Name, err = getString("sessionName"); err != nil {
		return session, venue, err
	}
	if session.Tag, err = getString("tag"); err != nil {
		return session, venue, err
	}
	if session.ServerName, err = getString("serverName"); err != nil {
		return session, venue, err
	}
	if session.Organizer, err = getString("organizer"); err != nil {
		return session, venue, err
	}

	captureDelay, err := getFloat("captureDelay")
	if err != nil {
		return session, venue, err
	}
	session.CaptureDelay = float32(captureDelay)

	// rules block is optional; absent fields stay zero so the worker can
	// overlay configured defaults
	if rulesRaw, ok := sessionTemp["rules"]; ok {
		rules, ok := rulesRaw.(map[string]any)
		if !ok {
			return session, venue, fmt.Errorf("session field %q is not an object", "rules")
		}
		if mode, ok := rules["countMode"]; ok {
			s, ok := mode.(string)
			if !ok {
				return session, venue, fmt.Errorf("rules field %q is not a string", "countMode")
			}
			session.Rules.CountMode = s
		}
		if lapCap, ok := rules["lapCap"]; ok {
			f, ok := lapCap.(float64)
			if !ok || f != float64(int(f)) || f < 0 {
				return session, venue, fmt.Errorf("rules field %q is not a non-negative integer", "lapCap")
			}
			session.Rules.LapCap = int(f)
		}
	}

	// received at feed handshake and saved to local memory
	session.FeedVersion, session.EngineVersion = p.versions()

	p.logger.Debug("Parsed session data",
		"sessionName", session.Name,
		"venueName", venue.Name)

	return session, venue, nil
}
