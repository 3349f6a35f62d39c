package sensor

import "time"

type Reading struct {
	Channel    int       `json:"channel"`
	Raw        int16     `json:"raw"`
	Code       int16     `json:"code"`
	Resolution int       `json:"resolution"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

type Sensor interface {
	Read() ([]Reading, error)
	Close() error
}
