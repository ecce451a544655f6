package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/lapline/lapline/internal/dispatcher"
)

func dispatchDemoEvent(command string, args []string) {
	if eventDispatcher == nil {
		return
	}
	eventDispatcher.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// runDemo drives a short synthetic race through the full pipeline. Useful for
// smoke-testing a storage backend or populating a fresh database.
func runDemo() error {
	backend, err := createStorageBackend()
	if err != nil {
		return err
	}
	storageBackend = backend

	buildInflux()
	buildWorker()

	Logger.Info("Populating demo data...")
	demoStart := time.Now()
	populateDemoData()
	Logger.Info("Demo data populated.", "duration", time.Since(demoStart))

	if err := storageBackend.Close(); err != nil {
		Logger.Error("Failed to close storage backend", "error", err)
	}
	influxManager.Close()
	shutdownTelemetry()
	return nil
}

func populateDemoData() {
	// declare test size counts
	var (
		numEntities int = 8
		numLaps     int = 5

		teamNames = []string{"Apex Racing", "Borealis GP", "Copperhead", ""}

		teamColors = map[string]string{
			"Apex Racing": "#d62828",
			"Borealis GP": "#1d3557",
			"Copperhead":  "#e07a00",
		}

		classes = []string{"GT3", "GT3", "GT4"}

		driverNames = []string{
			"J. Moreau", "K. Tanaka", "L. Virtanen", "A. Costa",
			"S. Baptiste", "R. Novak", "M. Okafor", "D. Lindqvist",
			"P. Weiss", "T. Caldeira", "H. Sorensen", "V. Marchetti",
		}

		eventNames    = []string{"raceControl", "weather", "incident"}
		eventMessages = []string{
			"Track limits warning issued",
			"Light rain reported at turn 3",
			"Debris cleared on the back straight",
			"Full course yellow lifted",
		}

		// Rectangular demo circuit, venue-local meters. Gates sit on the two
		// long straights; the return leg closes the loop through start/finish
		// and swings wide so the run back up never clips the gate again.
		lapPath = [][3]float64{
			{5, 0, 0},
			{15, 0, 0},  // through sector A [10..12]
			{25, 0, 0},  // through sector B [20..22]
			{25, 20, 0},
			{1, 20, 0},
			{1, -10, 0}, // through start/finish [0..2]
			{8, -10, 0},
		}

		waitGroup = sync.WaitGroup{}
	)

	// session + venue
	venueData := map[string]any{
		"venueName":   "demo_ring",
		"displayName": "Demo Ring",
		"author":      "lapline",
		"trackLength": 84.0,
		"latitude":    52.07,
		"longitude":   -1.01,
	}
	venueJSON, err := json.Marshal(venueData)
	if err != nil {
		fmt.Println(err)
	}

	sessionData := map[string]any{
		"sessionName":  fmt.Sprintf("Demo Session %s", SessionStartTime.Format("15:04")),
		"tag":          "demo",
		"serverName":   ServerName,
		"organizer":    "Demo Club",
		"captureDelay": 1.0,
		"rules": map[string]any{
			"countMode": "entity",
			"lapCap":    0,
		},
	}
	sessionJSON, err := json.Marshal(sessionData)
	if err != nil {
		fmt.Println(err)
	}

	dispatchDemoEvent(":FEED:VERSION:", []string{"1.0.0-demo"})
	dispatchDemoEvent(":NEW:SESSION:", []string{string(venueJSON), string(sessionJSON)})

	// checkpoints: start/finish plus two sector gates
	dispatchDemoEvent(":NEW:CHECKPOINT:", []string{"1", "Start/Finish", "[0,-5,-5]", "[2,5,5]", "0", "true"})
	dispatchDemoEvent(":NEW:CHECKPOINT:", []string{"2", "Sector A", "[10,-5,-5]", "[12,5,5]", "1", "false"})
	dispatchDemoEvent(":NEW:CHECKPOINT:", []string{"3", "Sector B", "[20,-5,-5]", "[22,5,5]", "2", "false"})

	dispatchDemoEvent(":TRACK:OUTLINE:", []string{
		"circuit edge",
		"[[1,-10],[5,0],[25,0],[25,20],[1,20],[1,-10]]",
	})

	// entities
	for id := 1; id <= numEntities; id++ {
		team := teamNames[(id-1)%len(teamNames)]
		entity := []string{
			"0",
			strconv.Itoa(id),
			driverNames[(id-1)%len(driverNames)],
			team,
			classes[(id-1)%len(classes)],
			strconv.Itoa(id*7 + rand.Intn(5)),
			strconv.FormatBool(id%3 == 0),
		}
		if color, ok := teamColors[team]; ok {
			entity = append(entity, color)
		}
		dispatchDemoEvent(":NEW:ENTITY:", entity)
	}

	// session clock and feed health heartbeat
	stopClock := make(chan struct{})
	go func() {
		clockFrame := 0
		for {
			select {
			case <-stopClock:
				return
			case <-time.After(250 * time.Millisecond):
				clockFrame += 10
				dispatchDemoEvent(":TIME:", []string{
					strconv.Itoa(clockFrame),
					fmt.Sprintf("%.1f", float64(clockFrame)),
				})
				dispatchDemoEvent(":FEED:STATUS:", []string{
					strconv.Itoa(clockFrame),
					fmt.Sprintf("%.1f", 28+rand.Float64()*5),
					fmt.Sprintf("%.1f", 8+rand.Float64()*20),
					strconv.Itoa(rand.Intn(3)),
				})
			}
		}
	}()

	// drivers
	for id := 1; id <= numEntities; id++ {
		waitGroup.Add(1)
		go func(entityID int) {
			defer waitGroup.Done()

			// lateral offset keeps cars off each other's line but inside
			// every gate's [-5,5] span
			offset := (rand.Float64() * 6) - 3
			frame := 1
			last := lapPath[len(lapPath)-1]
			prev := [3]float64{last[0], last[1] + offset, 0}

			for lap := 0; lap < numLaps; lap++ {
				for _, wp := range lapPath {
					target := [3]float64{wp[0], wp[1] + offset, wp[2]}
					dx := target[0] - prev[0]
					dy := target[1] - prev[1]
					dist := math.Hypot(dx, dy)
					steps := int(math.Ceil(dist / 5))
					if steps < 1 {
						steps = 1
					}

					bearing := math.Atan2(dx, dy) * (180 / math.Pi)
					if bearing < 0 {
						bearing += 360
					}

					for s := 1; s <= steps; s++ {
						t := float64(s) / float64(steps)
						x := prev[0] + dx*t + (rand.Float64()*0.8 - 0.4)
						y := prev[1] + dy*t + (rand.Float64()*0.8 - 0.4)
						speed := 30 + rand.Float64()*12
						vx := (dx / dist) * speed
						vy := (dy / dist) * speed

						dispatchDemoEvent(":ENTITY:POS:", []string{
							strconv.Itoa(entityID),
							fmt.Sprintf("[%.2f,%.2f,%.2f]", x, y, 0.0),
							strconv.Itoa(frame),
							strconv.Itoa(int(bearing)),
							fmt.Sprintf("%.1f", speed),
							fmt.Sprintf("[%.2f,%.2f,0.00]", vx, vy),
						})
						frame++
						time.Sleep(10 * time.Millisecond)
					}
					prev = target
				}
			}
		}(id)
	}

	waitGroup.Wait()
	close(stopClock)

	for i := 0; i < 4; i++ {
		dispatchDemoEvent(":EVENT:", []string{
			strconv.Itoa(rand.Intn(numLaps * 30)),
			eventNames[rand.Intn(len(eventNames))],
			eventMessages[rand.Intn(len(eventMessages))],
		})
	}

	// Give dispatcher time to process buffered events
	time.Sleep(2 * time.Second)

	dispatchDemoEvent(":END:SESSION:", []string{})
}
