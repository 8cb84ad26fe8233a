package telemetry

// Field names shared by sources, the strategy enricher and the dashboard.
const (
	FieldSpeed            = "speed"
	FieldRPM              = "rpm"
	FieldGear             = "gear"
	FieldThrottle         = "throttle"
	FieldBrake            = "brake"
	FieldClutch           = "clutch"
	FieldLatG             = "lat_g"
	FieldLonG             = "lon_g"
	FieldSteeringAngle    = "steering_angle"
	FieldSteeringAngleMax = "steering_angle_max"
	FieldLap              = "lap"
	FieldLapDistPct       = "lap_dist_pct"
	FieldLapCurrentTime   = "lap_current_time"
	FieldLapBestTime      = "lap_best_time"
	FieldLapLastTime      = "lap_last_time"
	FieldClassBestTime    = "class_best_time"
	FieldLapsRemaining    = "laps_remaining"
	FieldTimeRemaining    = "time_remaining"
	FieldFuelLevel        = "fuel_level"
	FieldFuelLevelPct     = "fuel_level_pct"
	FieldFuelUsePerHour   = "fuel_use_per_hour"
	FieldOnPitRoad        = "on_pit_road"
	FieldOnTrack          = "on_track"
	FieldCarLeftRight     = "car_left_right"
	FieldPosition         = "position"
	FieldTempLF           = "tyre_temp_lf"
	FieldTempRF           = "tyre_temp_rf"
	FieldTempLR           = "tyre_temp_lr"
	FieldTempRR           = "tyre_temp_rr"

	// Derived per tick by the strategy enricher.
	FieldLiveDelta         = "live_delta"
	FieldLeaderDelta       = "leader_delta"
	FieldCurrentSector     = "current_sector"
	FieldSectorTime        = "sector_time"
	FieldStintLap          = "stint_lap"
	FieldFuelLapsRemaining = "fuel_laps_remaining"
	FieldFuelTimeRemaining = "fuel_time_remaining"
	FieldPredictedStops    = "predicted_stops"
	FieldAveragePace       = "average_pace"
	FieldPredictedStopTime = "predicted_stop_time"
)

// CarLeftRightValues are the spotter states reported by the simulator, in
// SDK index order.
var CarLeftRightValues = []string{
	"off",
	"clear",
	"car_left",
	"car_right",
	"car_left_right",
	"two_cars_left",
	"two_cars_right",
}

// DefaultSchema declares every field the pipeline knows how to carry.
var DefaultSchema = NewSchema(
	FieldSpec{Name: FieldSpeed, Kind: KindFloat, Unit: "km/h"},
	FieldSpec{Name: FieldRPM, Kind: KindInt, Unit: "rev/min"},
	FieldSpec{Name: FieldGear, Kind: KindInt},
	FieldSpec{Name: FieldThrottle, Kind: KindFloat, Unit: "%"},
	FieldSpec{Name: FieldBrake, Kind: KindFloat, Unit: "%"},
	FieldSpec{Name: FieldClutch, Kind: KindFloat, Unit: "%"},
	FieldSpec{Name: FieldLatG, Kind: KindFloat, Unit: "m/s^2"},
	FieldSpec{Name: FieldLonG, Kind: KindFloat, Unit: "m/s^2"},
	FieldSpec{Name: FieldSteeringAngle, Kind: KindFloat, Unit: "rad"},
	FieldSpec{Name: FieldSteeringAngleMax, Kind: KindFloat, Unit: "rad"},
	FieldSpec{Name: FieldLap, Kind: KindInt},
	FieldSpec{Name: FieldLapDistPct, Kind: KindFloat, Unit: "%"},
	FieldSpec{Name: FieldLapCurrentTime, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldLapBestTime, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldLapLastTime, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldClassBestTime, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldLapsRemaining, Kind: KindInt},
	FieldSpec{Name: FieldTimeRemaining, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldFuelLevel, Kind: KindFloat, Unit: "l"},
	FieldSpec{Name: FieldFuelLevelPct, Kind: KindFloat, Unit: "%"},
	FieldSpec{Name: FieldFuelUsePerHour, Kind: KindFloat, Unit: "kg/h"},
	FieldSpec{Name: FieldOnPitRoad, Kind: KindBool},
	FieldSpec{Name: FieldOnTrack, Kind: KindBool},
	FieldSpec{Name: FieldCarLeftRight, Kind: KindEnum, Values: CarLeftRightValues},
	FieldSpec{Name: FieldPosition, Kind: KindInt},
	FieldSpec{Name: FieldTempLF, Kind: KindFloat, Unit: "C"},
	FieldSpec{Name: FieldTempRF, Kind: KindFloat, Unit: "C"},
	FieldSpec{Name: FieldTempLR, Kind: KindFloat, Unit: "C"},
	FieldSpec{Name: FieldTempRR, Kind: KindFloat, Unit: "C"},

	FieldSpec{Name: FieldLiveDelta, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldLeaderDelta, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldCurrentSector, Kind: KindInt},
	FieldSpec{Name: FieldSectorTime, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldStintLap, Kind: KindInt},
	FieldSpec{Name: FieldFuelLapsRemaining, Kind: KindInt},
	FieldSpec{Name: FieldFuelTimeRemaining, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldPredictedStops, Kind: KindInt},
	FieldSpec{Name: FieldAveragePace, Kind: KindFloat, Unit: "s"},
	FieldSpec{Name: FieldPredictedStopTime, Kind: KindFloat, Unit: "s"},
)
