package output

import "github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"

// Output receives batches of readings. An output publishes at its own
// interval, so a batch usually holds one averaged reading.
type Output interface {
	Publish([]sensor.Reading) error
	Close() error
}

// helper constructors are in subpackages
