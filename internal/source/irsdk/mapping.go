package irsdk

import "github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"

type binding struct {
	sdk       string
	field     string
	transform func(any) any
}

func scale(k float64) func(any) any {
	return func(v any) any {
		if f, ok := asFloat(v); ok {
			return f * k
		}
		return v
	}
}

func invert(v any) any {
	if f, ok := asFloat(v); ok {
		return 1 - f
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// bindings maps SDK variable names onto schema fields. Speed arrives in m/s
// and ClutchRaw reports 1 for a released pedal.
var bindings = []binding{
	{sdk: "Speed", field: telemetry.FieldSpeed, transform: scale(3.6)},
	{sdk: "RPM", field: telemetry.FieldRPM},
	{sdk: "Gear", field: telemetry.FieldGear},
	{sdk: "ThrottleRaw", field: telemetry.FieldThrottle},
	{sdk: "BrakeRaw", field: telemetry.FieldBrake},
	{sdk: "ClutchRaw", field: telemetry.FieldClutch, transform: invert},
	{sdk: "LatAccel", field: telemetry.FieldLatG},
	{sdk: "LongAccel", field: telemetry.FieldLonG},
	{sdk: "SteeringWheelAngle", field: telemetry.FieldSteeringAngle},
	{sdk: "SteeringWheelAngleMax", field: telemetry.FieldSteeringAngleMax},
	{sdk: "Lap", field: telemetry.FieldLap},
	{sdk: "LapDistPct", field: telemetry.FieldLapDistPct},
	{sdk: "LapCurrentLapTime", field: telemetry.FieldLapCurrentTime},
	{sdk: "LapBestLapTime", field: telemetry.FieldLapBestTime},
	{sdk: "LapLastLapTime", field: telemetry.FieldLapLastTime},
	{sdk: "SessionLapsRemainEx", field: telemetry.FieldLapsRemaining},
	{sdk: "SessionTimeRemain", field: telemetry.FieldTimeRemaining},
	{sdk: "FuelLevel", field: telemetry.FieldFuelLevel},
	{sdk: "FuelLevelPct", field: telemetry.FieldFuelLevelPct},
	{sdk: "FuelUsePerHour", field: telemetry.FieldFuelUsePerHour},
	{sdk: "OnPitRoad", field: telemetry.FieldOnPitRoad},
	{sdk: "IsOnTrack", field: telemetry.FieldOnTrack},
	{sdk: "CarLeftRight", field: telemetry.FieldCarLeftRight},
	{sdk: "PlayerCarClassPosition", field: telemetry.FieldPosition},
	{sdk: "LFtempCM", field: telemetry.FieldTempLF},
	{sdk: "RFtempCM", field: telemetry.FieldTempRF},
	{sdk: "LRtempCM", field: telemetry.FieldTempLR},
	{sdk: "RRtempCM", field: telemetry.FieldTempRR},
}
