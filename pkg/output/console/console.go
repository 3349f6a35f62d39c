package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/output"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	w := c.w
	if w == nil {
		w = os.Stdout
	}
	for _, r := range readings {
		if _, err := fmt.Fprintf(w, "%s bits=%d raw=%d value=%.6f\n", r.Timestamp.Format(time.RFC3339), r.Resolution, r.Raw, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
