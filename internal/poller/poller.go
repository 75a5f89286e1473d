// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tamzrod/glucoguard/internal/alarm"
	"github.com/tamzrod/glucoguard/internal/cache"
	"github.com/tamzrod/glucoguard/internal/params"
	"github.com/tamzrod/glucoguard/internal/rfid"
	"github.com/tamzrod/glucoguard/internal/telegram"
	"github.com/tamzrod/glucoguard/internal/transport"
)

// Scanner reads one pass worth of sensor blocks.
type Scanner interface {
	Scan(p params.Params) rfid.ScanResult
}

// Transmitter abstracts the radio operations needed by the poller.
type Transmitter interface {
	Enable(ctx context.Context) error
	Disable()
	Send(t telegram.Telegram) error
}

// Poller runs sensor passes and owns the device state.
type Poller struct {
	cfg    Config
	set    transport.Set
	engine alarm.Engine

	scanner Scanner
	cache   *cache.Cache // nil without cache
	radio   Transmitter  // nil without radio

	log   *slog.Logger
	state DeviceState
}

// New creates a poller. c and radio may be nil when the variant has no
// cache or no radio.
func New(cfg Config, set transport.Set, scanner Scanner, c *cache.Cache, radio Transmitter, log *slog.Logger) (*Poller, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if scanner == nil {
		return nil, errors.New("poller: scanner required")
	}
	if cfg.Params.ReadInterval8 == 0 {
		return nil, errors.New("poller: read interval must be > 0")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		set:     set,
		engine:  alarm.NewEngine(cfg.Params),
		scanner: scanner,
		cache:   c,
		radio:   radio,
		log:     log.With("component", "poller"),
	}, nil
}

// State returns a copy of the device state.
func (p *Poller) State() DeviceState { return p.state }

// Boot logs the parameter record and announces the restart with a zero
// glucose report.
func (p *Poller) Boot(ctx context.Context) {
	pr := p.cfg.Params
	osc, override := pr.OscillatorOverride()

	p.log.Info("boot",
		"variant", p.set.Variant.String(),
		"osc_override", override,
		"osc", osc,
		"slope", pr.SensorSlope,
		"offset", pr.SensorOffset,
		"alarm_high", int(pr.AlarmHigh2)<<1,
		"alarm_low", int(pr.AlarmLow2)<<1,
		"margin_high", int(pr.MarginHigh2)<<1,
		"margin_low", int(pr.MarginLow2)<<1,
		"read_error_retry_ms", pr.ReadErrorRetryMs(),
		"read_interval_ms", pr.ReadIntervalMs(),
	)
	for i, b := range pr.Battery8 {
		p.log.Debug("battery breakpoint", "level", i+1, "charge_time", int(b)<<3)
	}

	p.state.Battery = p.set.Battery.ChargeTime()
	p.transmit(ctx, 0, nil)
}

// PollOnce performs exactly one pass and returns how long to wait.
// Scan failures never abort the device; they set RFID_ERROR.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	st := &p.state

	p.set.LEDs.SetGreen(false)
	p.set.LEDs.SetRed(false)
	p.blink(uint8(st.Alarm.Status))

	st.Battery = p.set.Battery.ChargeTime()
	if st.Pass == 0 {
		p.beep(BatteryBeeps(st.Battery, p.cfg.Params), batteryBeepMs, batteryBeepMs)
	}

	p.log.Info("pass",
		"pass", st.Pass,
		"baseline", st.Alarm.Baseline,
		"status", st.Alarm.Status.String(),
		"battery", st.Battery,
	)

	res := PollResult{Pass: st.Pass, Battery: st.Battery}
	defer func() { st.Pass++ }()

	if p.cache != nil {
		p.cache.BeginPass()
	}

	scan := p.scanner.Scan(p.cfg.Params)
	p.cacheBlocks(scan.Blocks)

	// ---- failed scan ----
	if !scan.OK() {
		p.engine.Fail(&st.Alarm)
		st.LastErr = scan.Err
		p.endPass()

		res.Status = st.Alarm.Status
		res.Err = scan.Err
		res.RawErrorCode = rfid.ErrorCode(scan.Err)
		res.FailedBlock = scan.FailedBlock
		res.WaitMs = p.cfg.Params.ReadErrorRetryMs()

		p.log.Warn("scan failed",
			"block", scan.FailedBlock,
			"code", res.RawErrorCode,
			"err", scan.Err,
		)

		p.transmit(ctx, 0, nil)
		p.beep(errorBeeps, errorBeepMs, errorBeepMs)
		return res
	}

	// ---- good scan ----
	avg := scan.Samples.TrimmedAverage()
	low, high := p.engine.Thresholds(st.Alarm)

	if p.cache != nil {
		err := p.cache.WriteSummary(cache.Summary{
			Pass:     st.Pass,
			Average:  avg,
			Baseline: st.Alarm.Baseline,
			Low:      low,
			High:     high,
			TrendIdx: scan.TrendIdx,
			HistIdx:  scan.HistIdx,
		})
		if err != nil {
			p.log.Warn("cache summary failed", "err", err)
		}
	}
	p.endPass()

	dec := p.engine.Update(&st.Alarm, avg)
	st.LastAverage = avg
	st.LastErr = nil
	low, high = p.engine.Thresholds(st.Alarm)

	p.log.Info("glucose",
		"mgdl", int(avg)<<1,
		"status", dec.Status.String(),
		"alarm", dec.Direction.String(),
		"low", int(low)<<1,
		"high", int(high)<<1,
	)

	switch dec.Direction {
	case alarm.High:
		p.set.LEDs.SetRed(true)
	case alarm.Low:
		p.set.LEDs.SetGreen(true)
	}

	res.Status = dec.Status
	res.Average = avg
	res.Decision = dec
	if p.cache != nil {
		res.Delta = p.cache.Delta()
	}

	var delta *cache.Delta
	if p.cache != nil {
		delta = &res.Delta
	}
	p.transmit(ctx, avg, delta)

	if dec.Alarm() {
		p.beep(alarmBeeps, alarmBeepOnMs, alarmBeepOff)
		res.WaitMs = AlarmRecheckMs
		return res
	}
	res.WaitMs = p.cfg.Params.ReadIntervalMs()
	return res
}

func (p *Poller) cacheBlocks(blocks []rfid.Block) {
	if p.cache == nil {
		return
	}
	for _, b := range blocks {
		if err := p.cache.WriteBlock(b.Payload); err != nil {
			p.log.Warn("cache block failed", "block", b.Index, "err", err)
			return
		}
	}
}

func (p *Poller) endPass() {
	if p.cache == nil {
		return
	}
	if err := p.cache.EndPass(); err != nil {
		p.log.Warn("cache commit failed", "err", err)
	}
}

// transmit powers the radio, sends the pass delta (if any) and the glucose
// report, then powers it down. Radio failures are logged only.
func (p *Poller) transmit(ctx context.Context, avg uint8, delta *cache.Delta) {
	if p.radio == nil {
		return
	}

	if err := p.radio.Enable(ctx); err != nil {
		p.log.Warn("radio enable", "err", err)
	}
	defer p.radio.Disable()

	var id telegram.ID // the radio stamps the learned sender

	if delta != nil {
		p.send(telegram.Bitmap(id, delta.Bitmap[:]))
		if len(delta.Values) > 0 {
			p.send(telegram.Values(id, delta.Values))
		}
		if delta.Dropped > 0 {
			p.log.Debug("delta truncated", "dropped", delta.Dropped)
		}
	}

	p.send(telegram.Glucose(id, telegram.GlucoseReport{
		Glucose:     avg,
		Battery:     p.state.Battery,
		BoardStatus: uint8(p.state.Alarm.Status),
	}))
}

func (p *Poller) send(t telegram.Telegram) {
	err := p.radio.Send(t)
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrNoIdentity):
		p.log.Debug("telegram suppressed", "cmd", t.Command)
	default:
		p.log.Warn("telegram send failed", "cmd", t.Command, "err", err)
	}
}
