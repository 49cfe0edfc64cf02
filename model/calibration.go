package model

import "time"

// CalibrationPoint is one fingerprint: a surveyed position paired with
// the feature vector observed there. Points are only created while a
// calibration session is open and are immutable afterwards.
type CalibrationPoint struct {
	Position  Position      `json:"position"`
	Features  FeatureVector `json:"features"`
	Timestamp time.Time     `json:"timestamp"`
}

// CalibrationCommand is the closed set of operator actions that drive a
// calibration session. Handlers switch on the concrete type; adding a
// new command means updating every switch.
type CalibrationCommand interface {
	isCalibrationCommand()
}

// StartSession opens a new calibration session, discarding any frozen
// fingerprint set from a previous session.
type StartSession struct {
	SessionID string
}

// AddPoint records the currently observed samples at a surveyed
// position. Valid only while a session is open.
type AddPoint struct {
	Position Position
}

// CompleteSession freezes the session's fingerprints for inference.
type CompleteSession struct{}

func (StartSession) isCalibrationCommand()    {}
func (AddPoint) isCalibrationCommand()        {}
func (CompleteSession) isCalibrationCommand() {}
