// internal/telegram/radio.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tamzrod/glucoguard/internal/transport"
)

var (
	ErrHandshakeTimeout = errors.New("telegram: base id handshake timed out")
	ErrNoIdentity       = errors.New("telegram: no valid sender id, telegram suppressed")
)

// Power sequencing and handshake timing (ms).
const (
	ChargeMs    = 100   // supply capacitor charge
	StartupMs   = 600   // module start-up, max 500
	DrainMs     = 100   // let the UART and module finish
	DischargeMs = 10000 // supply capacitor discharge

	TxSettleMs = 100 // after each telegram

	HandshakePolls  = 150
	HandshakePollMs = 100
)

// Policy decides what happens to telegrams while no sender id is known.
type Policy int

const (
	// PolicyTransmit sends with a zero id.
	PolicyTransmit Policy = iota
	// PolicySuppress drops telegrams until the id is known.
	PolicySuppress
)

func (p Policy) String() string {
	if p == PolicySuppress {
		return "suppress"
	}
	return "transmit"
}

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "transmit":
		return PolicyTransmit, nil
	case "suppress":
		return PolicySuppress, nil
	default:
		return 0, fmt.Errorf("telegram: unknown handshake policy %q (allowed: transmit, suppress)", s)
	}
}

// Radio owns the radio module: supply, base id handshake and transmission.
type Radio struct {
	line  transport.Line
	rx    transport.Receiver
	power transport.RadioPower
	sleep transport.Sleeper
	leds  transport.Indicator

	enc    *Encoder
	policy Policy
	log    *slog.Logger

	m         Matcher
	attempted bool
}

// NewRadio builds a radio from the capability set of a radio variant.
func NewRadio(set transport.Set, policy Policy, log *slog.Logger) (*Radio, error) {
	if set.Line == nil || set.RX == nil || set.Radio == nil || set.Sleep == nil {
		return nil, errors.New("telegram: radio needs serial line, receiver, radio power and sleeper")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Radio{
		line:   set.Line,
		rx:     set.RX,
		power:  set.Radio,
		sleep:  set.Sleep,
		leds:   set.LEDs,
		enc:    NewEncoder(set.Line),
		policy: policy,
		log:    log.With("component", "radio"),
	}, nil
}

// Identity returns the learned sender id.
func (r *Radio) Identity() (ID, bool) { return r.m.ID() }

// Enable powers the module. The first call also runs the base id handshake;
// its timeout is returned but leaves the module powered.
func (r *Radio) Enable(ctx context.Context) error {
	r.power.SetRadioPower(true)
	r.sleep.SleepMs(ChargeMs)
	r.sleep.SleepMs(StartupMs)

	if r.m.Valid() || r.attempted {
		return nil
	}
	return r.Handshake(ctx)
}

// Disable powers the module down and waits for the supply to discharge.
func (r *Radio) Disable() {
	r.sleep.SleepMs(DrainMs)
	r.power.SetRadioPower(false)
	transport.SleepFull(r.sleep, DischargeMs)
}

// Handshake sends the read base id command and waits for the response.
func (r *Radio) Handshake(ctx context.Context) error {
	r.attempted = true
	r.m.Reset()

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.receive(stop, done)

	var sendErr error
	for _, b := range ReadBaseIDCommand {
		if err := r.line.SendByte(b); err != nil {
			sendErr = err
			break
		}
	}

	green, red := false, true
	r.setLEDs(green, red)
	if sendErr == nil {
		for k := 0; k < HandshakePolls; k++ {
			if ctx.Err() != nil {
				break
			}
			r.sleep.SleepMs(HandshakePollMs)
			if r.m.Valid() {
				break
			}
			green, red = !green, !red
			r.setLEDs(green, red)
		}
	}

	close(stop)
	<-done
	r.setLEDs(false, false)

	if sendErr != nil {
		return fmt.Errorf("telegram: send base id command: %w", sendErr)
	}
	id, ok := r.m.ID()
	if !ok {
		r.log.Warn("base id handshake timed out", "policy", r.policy.String())
		return ErrHandshakeTimeout
	}
	r.log.Info("radio identity acquired", "id", id.String())
	return nil
}

// receive stands in for the UART receive interrupt: every byte goes to the
// matcher until stop is closed.
func (r *Radio) receive(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		b, err := r.rx.ReadByte()
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				continue
			}
			r.log.Warn("radio receive failed", "err", err)
			return
		}
		r.m.Feed(b)
	}
}

func (r *Radio) setLEDs(green, red bool) {
	if r.leds == nil {
		return
	}
	r.leds.SetGreen(green)
	r.leds.SetRed(red)
}

// Send transmits t with the current identity as sender.
func (r *Radio) Send(t Telegram) error {
	id, ok := r.m.ID()
	if !ok && r.policy == PolicySuppress {
		return ErrNoIdentity
	}
	t.Sender = id.Sender()

	if err := r.enc.Encode(t); err != nil {
		return err
	}
	r.sleep.SleepMs(TxSettleMs)
	return nil
}
