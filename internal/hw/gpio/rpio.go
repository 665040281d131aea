package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives BCM lines through go-rpio's /dev/gpiomem mapping.
// A line is configured on first use: writes make it an output, reads an
// input. Close floats every touched line so an indicator never stays lit.
type RPiDriver struct {
	mu    sync.Mutex
	lines map[int]line
}

type line struct {
	pin  rpio.Pin
	mode PinMode
}

// NewRPiDriver maps the GPIO registers. It fails off-Pi or without access
// to /dev/gpiomem.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w (not a Raspberry Pi, or no /dev/gpiomem access)", err)
	}
	debug.Verbose("GPIO: registers mapped (go-rpio)")
	return &RPiDriver{lines: make(map[int]line)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.lineLocked(pin, mode, true)
	return err
}

// lineLocked returns pin configured for mode. An already configured line is
// reused as is unless force asks for mode.
func (r *RPiDriver) lineLocked(pin int, mode PinMode, force bool) (line, error) {
	l, ok := r.lines[pin]
	if ok && (!force || l.mode == mode) {
		return l, nil
	}
	debug.GPIO("SetupPin", pin, mode)
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return line{}, fmt.Errorf("unknown pin mode: %d", mode)
	}
	l = line{pin: p, mode: mode}
	r.lines[pin] = l
	return l, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.lineLocked(pin, Output, true)
	if err != nil {
		return err
	}
	l.pin.Write(toRPIO(level))
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Reading an output line returns its driven level.
	l, err := r.lineLocked(pin, Input, false)
	if err != nil {
		return Low, err
	}
	lvl := fromRPIO(l.pin.Read())
	debug.GPIO("ReadPin", pin, lvl)
	return lvl, nil
}

func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, l := range r.lines {
		debug.Verbose("GPIO: floating pin %d", n)
		l.pin.Input()
	}
	clear(r.lines)
	return rpio.Close()
}

func toRPIO(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}

func fromRPIO(s rpio.State) Level {
	if s == rpio.High {
		return High
	}
	return Low
}
