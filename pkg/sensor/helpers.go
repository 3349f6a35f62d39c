package sensor

import (
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425"
	"go.uber.org/zap"
)

// driverOpts maps the service configuration onto the driver options. A
// configured retry count of 0 disables retries.
func driverOpts(cfg config.Config, log *zap.Logger) *mcp3425.Opts {
	retries := cfg.ADC.Retries
	if retries <= 0 {
		retries = mcp3425.NoRetry
	}
	return &mcp3425.Opts{
		Addr:       uint16(cfg.I2C.Address),
		Gain:       mcp3425.Gain(cfg.ADC.Gain),
		OneShot:    cfg.ADC.OneShot,
		MaxRetries: retries,
		Strict:     cfg.ADC.Strict,
		Logger:     log,
	}
}

// Average folds a batch into one reading carrying the mean value. Raw, code
// and timestamp come from the most recent reading. ok is false for an empty
// batch.
func Average(readings []Reading) (avg Reading, ok bool) {
	if len(readings) == 0 {
		return Reading{}, false
	}
	sum := 0.0
	for _, r := range readings {
		sum += r.Value
	}
	avg = readings[len(readings)-1]
	avg.Value = sum / float64(len(readings))
	return avg, true
}

// ConversionInterval is the time one conversion takes at resolution r,
// falling back to the default resolution like the driver does.
func ConversionInterval(r int) time.Duration {
	res := mcp3425.Resolution(r)
	if !res.Valid() {
		res = mcp3425.DefaultResolution
	}
	return time.Second / time.Duration(mcp3425.SampleRate(res))
}
