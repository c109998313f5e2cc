//go:build linux && (arm || arm64)

package statusled

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// gpioChips lists the GPIO character devices under /dev in name order.
func gpioChips() []string {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil
	}
	var chips []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chips = append(chips, filepath.Join("/dev", e.Name()))
		}
	}
	return chips
}

// openGPIO requests the LED's BCM pin as an output, initially dark. The pin
// is located by its line name, so it works whichever chip exposes the header.
func openGPIO(pin int) (line, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("statusled: invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	for _, path := range gpioChips() {
		chip, err := gpiocdev.NewChip(path)
		if err != nil {
			continue
		}
		if offset, err := chip.FindLine(lineName); err == nil {
			if l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("rocketlink-led")); err == nil {
				return &gpiodLine{chip: chip, line: l}, nil
			}
		}
		_ = chip.Close()
	}
	return nil, fmt.Errorf("statusled: led line %s unavailable", lineName)
}

var openGPIOFn = openGPIO

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) SetValue(v int) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("statusled: gpio line not initialized")
	}
	return g.line.SetValue(v)
}

func (g *gpiodLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
