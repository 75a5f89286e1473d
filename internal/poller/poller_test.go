// internal/poller/poller_test.go
package poller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/glucoguard/internal/alarm"
	"github.com/tamzrod/glucoguard/internal/cache"
	cfg "github.com/tamzrod/glucoguard/internal/config"
	"github.com/tamzrod/glucoguard/internal/params"
	"github.com/tamzrod/glucoguard/internal/rfid"
	"github.com/tamzrod/glucoguard/internal/telegram"
	"github.com/tamzrod/glucoguard/internal/transport"
)

// ---- fake reader chip ----

// chip answers Read Single Block with the same raw value at every sample
// offset. Blocks in overflow report an oversized FIFO.
type chip struct {
	def      uint16
	values   map[uint8]uint16
	overflow map[uint8]bool

	fifo uint8
	irq  uint8
	raw  []byte
}

func newChip(def uint16) *chip {
	return &chip{def: def, values: map[uint8]uint16{}, overflow: map[uint8]bool{}}
}

func rawBuf(v uint16) []byte {
	raw := make([]byte, 10)
	for _, off := range []int{0, 2, 4, 6} {
		raw[off+2] = byte(v)
		raw[off+3] = byte(v>>8) & 0x0F
	}
	return raw
}

func (c *chip) Exchange(cmd []byte, outLen int) ([]byte, error) {
	switch {
	case len(cmd) == 8 && cmd[6] == 0x20: // read single block
		blk := cmd[7]
		c.irq = 0xC0
		if c.overflow[blk] {
			c.fifo = 12
			return nil, nil
		}
		v, ok := c.values[blk]
		if !ok {
			v = c.def
		}
		c.fifo = 9
		c.raw = rawBuf(v)
	case len(cmd) == 1 && cmd[0] == 0x7F: // fifo read
		out := make([]byte, outLen)
		copy(out, c.raw)
		c.fifo = 0
		return out, nil
	case len(cmd) == 1 && cmd[0] == 0x8F: // fifo reset
		c.fifo = 0
	}
	return nil, nil
}

func (c *chip) ReadRegister(addr uint8) (uint8, error) {
	if addr == 0x1C {
		return c.fifo, nil
	}
	return 0, nil
}

func (c *chip) ReadInterruptStatus() (uint8, error) {
	v := c.irq
	c.irq = 0
	return v, nil
}

// ---- fake board ----

type sleeper struct{ total uint64 }

func (s *sleeper) SleepMs(ms uint32) uint32 {
	s.total += uint64(ms)
	return ms
}

type board struct {
	events []string
	green  bool
	red    bool
	tones  int
}

func (b *board) SetGreen(on bool) {
	b.green = on
	if on {
		b.events = append(b.events, "green")
	}
}

func (b *board) SetRed(on bool) {
	b.red = on
	if on {
		b.events = append(b.events, "red")
	}
}

func (b *board) SetTone(on bool) {
	if on {
		b.tones++
	}
}

type fakeRadio struct {
	sent     []telegram.Telegram
	enables  int
	disables int
}

func (r *fakeRadio) Enable(context.Context) error { r.enables++; return nil }
func (r *fakeRadio) Disable()                     { r.disables++ }

func (r *fakeRadio) Send(t telegram.Telegram) error {
	r.sent = append(r.sent, t)
	return nil
}

func (r *fakeRadio) last() telegram.Telegram { return r.sent[len(r.sent)-1] }

func (r *fakeRadio) commands() []byte {
	out := make([]byte, 0, len(r.sent))
	for _, t := range r.sent {
		out = append(out, t.Command)
	}
	return out
}

type rig struct {
	chip  *chip
	sleep *sleeper
	board *board
	radio *fakeRadio
	store *cache.MemStore
}

func newRig(charge uint16) (*rig, transport.Set) {
	r := &rig{
		chip:  newChip(1000), // 110 mg/dL with default params
		sleep: &sleeper{},
		board: &board{},
		radio: &fakeRadio{},
		store: cache.NewMemStore(),
	}
	set := transport.Set{
		Variant: transport.VariantSilent,
		SPI:     r.chip,
		Sleep:   r.sleep,
		Battery: transport.FixedBattery(charge),
		LEDs:    r.board,
		Beeper:  r.board,
	}
	return r, set
}

func newPoller(t *testing.T, r *rig, set transport.Set, c Config) *Poller {
	t.Helper()
	p, err := New(c, set, rfid.NewReader(set.SPI, set.Sleep, nil), cache.New(r.store), r.radio, nil)
	require.NoError(t, err)
	return p
}

// ---- tests ----

func TestBatteryBeeps(t *testing.T) {
	p := params.Default() // 1200, 1100, 1000, 900, 800
	cases := []struct {
		charge uint16
		want   int
	}{
		{9999, 1},
		{1200, 1},
		{1100, 2},
		{1000, 3},
		{900, 4},
		{890, 5},
		{800, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BatteryBeeps(tc.charge, p), "charge %d", tc.charge)
	}
}

func TestBlink_StatusBits(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	p.blink(uint8(alarm.StatusAboveInitial)) // 110
	assert.Equal(t, []string{"green", "green", "red"}, r.board.events)
	assert.Equal(t, uint64(3*(blinkOnMs+blinkOffMs)), r.sleep.total)
}

func TestBoot_RestartTelegram(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	p.Boot(context.Background())

	require.Len(t, r.radio.sent, 1)
	rep, err := telegram.ParseGlucose(r.radio.last())
	require.NoError(t, err)
	assert.Equal(t, telegram.GlucoseReport{Glucose: 0, Battery: 900, BoardStatus: 0}, rep)
	assert.Equal(t, 1, r.radio.enables)
	assert.Equal(t, 1, r.radio.disables)
}

func TestPollOnce_FirstPass(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	res := p.PollOnce(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, uint16(0), res.Pass)
	assert.Equal(t, uint8(55), res.Average)
	assert.Equal(t, alarm.StatusRunning, res.Status)
	assert.False(t, res.Decision.Alarm())
	assert.Equal(t, params.Default().ReadIntervalMs(), res.WaitMs)

	// battery beeps on power on only
	assert.Equal(t, 4, r.board.tones)

	assert.Equal(t, []byte{telegram.CmdBitmap, telegram.CmdValues, telegram.CmdGlucose}, r.radio.commands())
	rep, err := telegram.ParseGlucose(r.radio.last())
	require.NoError(t, err)
	assert.Equal(t, uint8(55), rep.Glucose)
	assert.Equal(t, uint8(alarm.StatusRunning), rep.BoardStatus)

	assert.False(t, res.Delta.Empty())
	assert.Equal(t, uint16(1), p.State().Pass)
	assert.Equal(t, uint8(55), p.State().Alarm.Baseline)
}

func TestPollOnce_SecondPassNoBatteryBeeps(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	p.PollOnce(context.Background())
	tones := r.board.tones
	r.radio.sent = nil

	res := p.PollOnce(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, tones, r.board.tones)
	assert.Equal(t, alarm.StatusAboveInitial, res.Status)

	// same sensor data: pass counter, baseline and low threshold changed
	assert.Equal(t, []byte{telegram.CmdBitmap, telegram.CmdValues, telegram.CmdGlucose}, r.radio.commands())
	assert.Equal(t, []byte{1, 55, 20}, res.Delta.Values)
}

func TestPollOnce_FifoOverflowBlock7(t *testing.T) {
	r, set := newRig(900)
	r.chip.overflow[7] = true
	pr := params.Default()
	p := newPoller(t, r, set, Config{Params: pr})

	res := p.PollOnce(context.Background())

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, rfid.ErrTransport)
	assert.Equal(t, alarm.StatusRFIDError, res.Status)
	assert.Equal(t, uint8(7), res.FailedBlock)
	assert.Equal(t, uint16(0x0101), res.RawErrorCode)
	assert.Equal(t, 8000*int32(pr.ReadErrorRetry8), res.WaitMs)

	// zero report only, no delta
	assert.Equal(t, []byte{telegram.CmdGlucose}, r.radio.commands())
	rep, err := telegram.ParseGlucose(r.radio.last())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), rep.Glucose)
	assert.Equal(t, uint8(alarm.StatusRFIDError), rep.BoardStatus)

	// battery beeps plus the short error pattern
	assert.Equal(t, 4+errorBeeps, r.board.tones)
	assert.Equal(t, uint8(0), p.State().Alarm.Baseline)
}

func TestPollOnce_ErrorKeepsBaseline(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	p.PollOnce(context.Background())
	before := p.State().Alarm

	r.chip.overflow[5] = true
	res := p.PollOnce(context.Background())
	require.Error(t, res.Err)

	after := p.State().Alarm
	assert.Equal(t, alarm.StatusRFIDError, after.Status)
	assert.Equal(t, before.Baseline, after.Baseline)
	assert.Equal(t, before.Margins, after.Margins)
}

func TestPollOnce_HighAlarm(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	p.PollOnce(context.Background()) // baseline 55
	tones := r.board.tones

	r.chip.def = 2154 // 260 mg/dL
	res := p.PollOnce(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, uint8(130), res.Average)
	assert.Equal(t, alarm.High, res.Decision.Direction)
	assert.Equal(t, int32(AlarmRecheckMs), res.WaitMs)
	assert.Equal(t, alarmBeeps, r.board.tones-tones)
	assert.True(t, r.board.red)
	assert.False(t, r.board.green)
}

func TestPollOnce_BeeperDisabled(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default(), BeeperDisabled: true})

	p.PollOnce(context.Background())
	r.chip.def = 2154
	res := p.PollOnce(context.Background())

	assert.True(t, res.Decision.Alarm())
	assert.Zero(t, r.board.tones)
}

func TestPollOnce_NoRadioNoCache(t *testing.T) {
	r, set := newRig(900)
	set.Variant = transport.VariantDebug

	p, err := New(Config{Params: params.Default()}, set, rfid.NewReader(set.SPI, set.Sleep, nil), nil, nil, nil)
	require.NoError(t, err)

	p.Boot(context.Background())
	res := p.PollOnce(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, uint8(55), res.Average)
	assert.True(t, res.Delta.Empty())
	assert.Empty(t, r.radio.sent)
}

func TestNew_Validation(t *testing.T) {
	r, set := newRig(900)

	_, err := New(Config{Params: params.Default()}, set, nil, nil, nil, nil)
	assert.Error(t, err)

	bad := set
	bad.SPI = nil
	_, err = New(Config{Params: params.Default()}, bad, rfid.NewReader(r.chip, r.sleep, nil), nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{}, set, rfid.NewReader(r.chip, r.sleep, nil), nil, nil, nil)
	assert.Error(t, err)
}

func TestRun_EmitsAndStops(t *testing.T) {
	r, set := newRig(900)
	p := newPoller(t, r, set, Config{Params: params.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PollResult)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	select {
	case res := <-out:
		assert.Equal(t, uint16(0), res.Pass)
	case <-time.After(2 * time.Second):
		t.Fatal("no poll result")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	// restart telegram first
	rep, err := telegram.ParseGlucose(r.radio.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(0), rep.Glucose)
}

// ---- Build ----

func TestBuild_DefaultParams(t *testing.T) {
	_, set := newRig(900)

	p, closer, err := Build(&cfg.DeviceConfig{Store: cfg.StoreConfig{Kind: "memory"}}, set, nil)
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, params.Default(), p.cfg.Params)
	assert.NotNil(t, p.cache)
	assert.Nil(t, p.radio)
}

func TestBuild_ProvisionsParamsIntoBolt(t *testing.T) {
	_, set := newRig(900)
	dir := t.TempDir()

	want := params.Default()
	want.SensorSlope = 140
	blob := filepath.Join(dir, "params.bin")
	require.NoError(t, os.WriteFile(blob, want.Encode(), 0o600))

	dbPath := filepath.Join(dir, "eeprom.db")
	d := &cfg.DeviceConfig{
		ParamsFile: blob,
		Store:      cfg.StoreConfig{Kind: "bolt", Path: dbPath},
	}

	p, closer, err := Build(d, set, nil)
	require.NoError(t, err)
	assert.Equal(t, want, p.cfg.Params)
	require.NoError(t, closer())

	// without the file the stored copy is used
	d.ParamsFile = ""
	p, closer, err = Build(d, set, nil)
	require.NoError(t, err)
	assert.Equal(t, want, p.cfg.Params)
	require.NoError(t, closer())
}

func TestBuild_RadioVariantNeedsSerial(t *testing.T) {
	_, set := newRig(900)
	set.Variant = transport.VariantEnocean

	_, _, err := Build(&cfg.DeviceConfig{}, set, nil)
	assert.Error(t, err)

	_, _, err = Build(&cfg.DeviceConfig{HandshakePolicy: "retry"}, set, nil)
	assert.Error(t, err)
}
