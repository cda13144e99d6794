package alarm

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	appLog "crocker/internal/log"
)

// OpenPin resolves the buzzer line by name (e.g. "GPIO18") through the
// periph registry. An empty name, or a host without GPIO, yields a silent
// output so the rest of the device keeps working.
func OpenPin(name string) Output {
	if name == "" {
		return silent{}
	}
	if _, err := host.Init(); err != nil {
		appLog.Warn("periph host init failed; buzzer disabled", "pin", name, "err", err)
		return silent{}
	}
	p := gpioreg.ByName(name)
	if p == nil {
		appLog.Warn("buzzer pin not found; buzzer disabled", "pin", name)
		return silent{}
	}
	if err := p.Out(gpio.Low); err != nil {
		appLog.Error("buzzer pin setup failed", fmt.Errorf("alarm: %s: %w", name, err))
		return silent{}
	}
	appLog.Info("buzzer pin ready", "pin", p.Name())
	return p
}

type silent struct{}

func (silent) Out(gpio.Level) error { return nil }
