// Package strategy derives race-engineering values (deltas, sectors, fuel
// and pit predictions) from the player's own telemetry.
package strategy

import (
	"math"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

// DefaultSectors splits a lap into equal-length sectors.
const DefaultSectors = 9

// maxStep bounds the time credited to a single tick, so a paused sampler
// does not inflate pit stop durations.
const maxStep = time.Second

// Stint tracks the current stint across ticks. It is not safe for
// concurrent use; the sampler calls Enrich from its own goroutine.
type Stint struct {
	sectors int

	last     time.Time
	havePrev bool
	prevLap  int64

	// Per-lap samples for the current stint.
	fuelAtLap   []float64
	fuelPerHour []float64
	lapTimes    []float64
	stintLap    int64

	onPit   bool
	pitTime float64
	stops   []float64
}

func NewStint(sectors int) *Stint {
	if sectors <= 0 {
		sectors = DefaultSectors
	}
	return &Stint{sectors: sectors}
}

func (s *Stint) Enrich(at time.Time, f telemetry.Fields) telemetry.Fields {
	dt := 0.0
	if !s.last.IsZero() {
		dt = min(at.Sub(s.last), maxStep).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	s.last = at

	s.trackLap(f)
	s.trackPit(f, dt)

	out := make([]telemetry.Field, 0, 10)
	add := func(name string, v telemetry.Value) {
		out = append(out, telemetry.Field{Name: name, Value: v})
	}

	cur := f.Float(telemetry.FieldLapCurrentTime)
	best := f.Float(telemetry.FieldLapBestTime)
	pct := f.Float(telemetry.FieldLapDistPct)

	liveDelta := 0.0
	if best > 0 && f.Has(telemetry.FieldLapDistPct) {
		liveDelta = round3(cur - best*pct)
	}
	add(telemetry.FieldLiveDelta, telemetry.FloatValue(liveDelta))
	if classBest := f.Float(telemetry.FieldClassBestTime); classBest > 0 {
		add(telemetry.FieldLeaderDelta, telemetry.FloatValue(round3(cur-classBest*pct)))
	}

	sector := min(int(pct*float64(s.sectors)), s.sectors-1)
	if sector < 0 {
		sector = 0
	}
	sectorTime := cur
	if best > 0 && cur > 0 {
		sectorTime = cur - best*float64(sector)/float64(s.sectors)
	}
	add(telemetry.FieldCurrentSector, telemetry.IntValue(int64(sector+1)))
	add(telemetry.FieldSectorTime, telemetry.FloatValue(sectorTime))
	add(telemetry.FieldStintLap, telemetry.IntValue(s.stintLap))

	p := s.predict(f)
	add(telemetry.FieldFuelLapsRemaining, telemetry.IntValue(p.fuelLaps))
	add(telemetry.FieldFuelTimeRemaining, telemetry.FloatValue(p.fuelTime))
	if p.stops >= 0 {
		add(telemetry.FieldPredictedStops, telemetry.IntValue(p.stops))
	}
	if len(s.lapTimes) > 0 {
		add(telemetry.FieldAveragePace, telemetry.FloatValue(mean(s.lapTimes)))
	}
	if len(s.stops) > 0 {
		add(telemetry.FieldPredictedStopTime, telemetry.FloatValue(mean(s.stops)))
	}
	return f.With(out...)
}

func (s *Stint) trackLap(f telemetry.Fields) {
	if !f.Has(telemetry.FieldLap) {
		return
	}
	lap := f.Int(telemetry.FieldLap)
	completed := s.havePrev && lap > s.prevLap
	s.prevLap, s.havePrev = lap, true
	if !completed {
		return
	}
	if last := f.Float(telemetry.FieldLapLastTime); last > 0 {
		s.lapTimes = append(s.lapTimes, last)
	}
	if f.Has(telemetry.FieldFuelLevel) {
		s.fuelAtLap = append(s.fuelAtLap, f.Float(telemetry.FieldFuelLevel))
		s.fuelPerHour = append(s.fuelPerHour, f.Float(telemetry.FieldFuelUsePerHour))
	}
	s.stintLap++
}

// trackPit resets the stint on pit entry and banks the time spent on pit
// road once the car leaves it.
func (s *Stint) trackPit(f telemetry.Fields, dt float64) {
	onPit := f.Bool(telemetry.FieldOnPitRoad)
	switch {
	case onPit && !s.onPit:
		if len(s.fuelAtLap) > 0 {
			s.fuelAtLap = s.fuelAtLap[:0]
			s.fuelPerHour = s.fuelPerHour[:0]
			s.lapTimes = s.lapTimes[:0]
			s.stintLap = 0
		}
		s.pitTime = dt
	case onPit:
		s.pitTime += dt
	case s.onPit:
		if s.pitTime > 0 {
			s.stops = append(s.stops, s.pitTime)
		}
		s.pitTime = 0
	}
	s.onPit = onPit
}

type prediction struct {
	fuelLaps int64   // -1 when unknown
	fuelTime float64 // seconds, -1 when unknown
	stops    int64   // -1 when unknown
}

func (s *Stint) predict(f telemetry.Fields) prediction {
	p := prediction{fuelLaps: -1, fuelTime: -1, stops: -1}
	lastFuel := 0.0
	if n := len(s.fuelAtLap); n > 0 {
		lastFuel = s.fuelAtLap[n-1]
	}

	byLaps := int64(math.MaxInt64)
	if n := len(s.fuelAtLap); n > 1 {
		perLap := math.Abs(s.fuelAtLap[n-1]-s.fuelAtLap[0]) / float64(n-1)
		if perLap > 0 {
			p.fuelLaps = int64(math.Floor(lastFuel / perLap))
			lapsLeft := f.Int(telemetry.FieldLapsRemaining)
			if p.fuelLaps > 0 && lapsLeft > 0 {
				stintLen := float64(int64(n) + p.fuelLaps)
				byLaps = int64(math.Ceil(float64(lapsLeft) / stintLen))
			}
		}
	}

	byTime := int64(math.MaxInt64)
	perHour := mean(s.fuelPerHour)
	timeLeft := f.Float(telemetry.FieldTimeRemaining)
	if perHour > 0 && timeLeft > 0 && len(s.fuelAtLap) > 0 {
		p.fuelTime = lastFuel / perHour * 3600
		stintTime := sum(s.lapTimes) + f.Float(telemetry.FieldLapCurrentTime)
		if stintTime > 0 {
			byTime = int64(math.Ceil(timeLeft / (stintTime + p.fuelTime)))
		}
	}

	if best := min(byLaps, byTime); best != math.MaxInt64 {
		p.stops = best
	}
	return p
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
