// internal/telegram/telegram_test.go
package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/glucoguard/internal/transport"
)

// ---- CRC ----

func TestCRC8_Vectors(t *testing.T) {
	assert.Equal(t, byte(0xF4), CRC8([]byte("123456789")))
	assert.Equal(t, byte(0x00), CRC8(nil))

	// the fixed command bytes carry valid checksums
	assert.Equal(t, byte(0x70), CRC8(ReadBaseIDCommand[1:5]))
	assert.Equal(t, byte(0x38), CRC8(ReadBaseIDCommand[6:7]))
	assert.Equal(t, byte(0xDB), CRC8(baseIDResponse[1:5]))
}

func TestCRC8_AppendedChecksumLeavesZero(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("123456789"),
		{0xD2, 0x20, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
	} {
		withCRC := append(append([]byte(nil), data...), CRC8(data))
		assert.Equal(t, byte(0), CRC8(withCRC), "%X", data)
	}
}

// ---- encode ----

var testID = ID{0xD5, 0x05, 0x00}

func TestMarshal_GlucoseTelegram(t *testing.T) {
	got, err := Marshal(Glucose(testID, GlucoseReport{Glucose: 60, Battery: 900, BoardStatus: 7}))
	require.NoError(t, err)

	want := []byte{
		0x55, 0x00, 0x0B, 0x07, 0x01, 0x80, // header
		0xD2, 0x20, 0x3C, 0x03, 0x84, 0x07, // rorg, cmd, glucose, battery, status
		0xFF, 0xD5, 0x05, 0x00, 0x00, // sender, status
		0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, // optional
		0x3E,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("telegram mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshal_DeltaTelegramLengths(t *testing.T) {
	b, err := Marshal(Bitmap(testID, []byte{0x01, 0x80, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, byte(1+1+3+4+1), b[2])
	assert.Equal(t, byte(CmdBitmap), b[headerLen+1])

	vals := []byte{1, 2, 3, 4, 5}
	v, err := Marshal(Values(testID, vals))
	require.NoError(t, err)
	assert.Equal(t, byte(1+1+len(vals)+4+1), v[2])
	assert.Len(t, v, headerLen+int(v[2])+OptLen+1)
}

type failLine struct{ after int }

func (f *failLine) SendByte(byte) error {
	if f.after == 0 {
		return errors.New("line down")
	}
	f.after--
	return nil
}

func TestEncoder_StopsOnLineError(t *testing.T) {
	l := &failLine{after: 3}
	err := NewEncoder(l).Encode(Values(testID, nil))
	require.Error(t, err)
	assert.Equal(t, 0, l.after)
}

// ---- decode ----

func TestDecode_RoundTrip(t *testing.T) {
	in := Glucose(testID, GlucoseReport{Glucose: 0, Battery: 0x04B0, BoardStatus: 3})
	wire, err := Marshal(in)
	require.NoError(t, err)

	got, n, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, testID.Sender(), got.Sender)
	assert.Equal(t, [4]byte{0xFF, 0xFF, 0xFF, 0xFF}, got.Dest)

	rep, err := ParseGlucose(got)
	require.NoError(t, err)
	assert.Equal(t, GlucoseReport{Glucose: 0, Battery: 0x04B0, BoardStatus: 3}, rep)
}

func TestDecode_Errors(t *testing.T) {
	wire, err := Marshal(Glucose(testID, GlucoseReport{Glucose: 50}))
	require.NoError(t, err)

	_, _, err = Decode(wire[:4])
	assert.ErrorIs(t, err, ErrShortTelegram)

	_, _, err = Decode(wire[:len(wire)-1])
	assert.ErrorIs(t, err, ErrShortTelegram)

	bad := append([]byte(nil), wire...)
	bad[0] = 0x00
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrSync)

	bad = append([]byte(nil), wire...)
	bad[5] ^= 0x01
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrHeaderCRC)

	bad = append([]byte(nil), wire...)
	bad[8] ^= 0x01
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrDataCRC)

	_, err = ParseGlucose(Values(testID, []byte{1}))
	assert.ErrorIs(t, err, ErrPayload)
}

type sliceRX struct{ b []byte }

func (s *sliceRX) ReadByte() (byte, error) {
	if len(s.b) == 0 {
		return 0, transport.ErrNoData
	}
	c := s.b[0]
	s.b = s.b[1:]
	return c, nil
}

func TestStreamReader_SkipsGarbageAndBrokenHeaders(t *testing.T) {
	a, _ := Marshal(Glucose(testID, GlucoseReport{Glucose: 61, BoardStatus: 6}))
	b, _ := Marshal(Values(testID, []byte{9, 8}))

	broken := append([]byte(nil), a[:headerLen]...)
	broken[5] ^= 0xFF

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0x55) // noise, stray sync
	stream = append(stream, broken...)
	stream = append(stream, a...)
	stream = append(stream, b...)

	sr := NewStreamReader(&sliceRX{b: stream})

	t1, err := sr.Next()
	require.NoError(t, err)
	rep, err := ParseGlucose(t1)
	require.NoError(t, err)
	assert.Equal(t, uint8(61), rep.Glucose)

	t2, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(CmdValues), t2.Command)
	assert.Equal(t, []byte{9, 8}, t2.Payload)

	_, err = sr.Next()
	assert.ErrorIs(t, err, transport.ErrNoData)
}

func TestStreamReader_KeepsPartialFrame(t *testing.T) {
	wire, _ := Marshal(Bitmap(testID, []byte{1, 2, 3}))
	rx := &sliceRX{b: append([]byte(nil), wire[:10]...)}
	sr := NewStreamReader(rx)

	_, err := sr.Next()
	require.ErrorIs(t, err, transport.ErrNoData)

	rx.b = append(rx.b, wire[10:]...)
	got, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Payload)
}

// ---- matcher ----

func response(id ID) []byte {
	return append(baseIDResponse[:], id[:]...)
}

func TestMatcher_ExactResponse(t *testing.T) {
	var m Matcher
	for _, b := range response(testID) {
		m.Feed(b)
	}
	require.True(t, m.Valid())
	id, ok := m.ID()
	require.True(t, ok)
	assert.Equal(t, testID, id)

	// further bytes are ignored
	m.Feed(0x00)
	id, _ = m.ID()
	assert.Equal(t, testID, id)
}

func TestMatcher_CorruptedPrefixNeverValidates(t *testing.T) {
	var m Matcher
	resp := response(ID{0x11, 0x22, 0x33})
	resp[5] = 0x00 // corrupt

	for _, b := range resp {
		m.Feed(b)
	}
	assert.False(t, m.Valid())
	_, ok := m.ID()
	assert.False(t, ok)

	// a clean response afterwards is picked up
	for _, b := range response(testID) {
		m.Feed(b)
	}
	assert.True(t, m.Valid())
}

func TestMatcher_ResyncAfterNoise(t *testing.T) {
	var m Matcher
	for _, b := range []byte{0x55, 0x00, 0x07} {
		m.Feed(b)
	}
	for _, b := range response(testID) {
		m.Feed(b)
	}
	id, ok := m.ID()
	require.True(t, ok)
	assert.Equal(t, testID, id)
}

// ---- radio ----

type fakeModule struct {
	respond []byte

	mu      sync.Mutex
	sent    []byte
	powered []bool
	rx      chan byte
}

func newFakeModule(respond []byte) *fakeModule {
	return &fakeModule{respond: respond, rx: make(chan byte, 64)}
}

func (f *fakeModule) SendByte(b byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, b)
	full := len(f.sent) == len(ReadBaseIDCommand)
	f.mu.Unlock()

	if full {
		for _, c := range f.respond {
			f.rx <- c
		}
	}
	return nil
}

func (f *fakeModule) ReadByte() (byte, error) {
	select {
	case b := <-f.rx:
		return b, nil
	case <-time.After(2 * time.Millisecond):
		return 0, transport.ErrNoData
	}
}

func (f *fakeModule) SetRadioPower(on bool) { f.powered = append(f.powered, on) }

func (f *fakeModule) sentBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.sent...)
}

type tickSleeper struct {
	mu    sync.Mutex
	calls []uint32
}

func (s *tickSleeper) SleepMs(ms uint32) uint32 {
	s.mu.Lock()
	s.calls = append(s.calls, ms)
	s.mu.Unlock()
	time.Sleep(time.Millisecond)
	return ms
}

func newRadio(t *testing.T, mod *fakeModule, policy Policy) (*Radio, *tickSleeper) {
	t.Helper()
	sl := &tickSleeper{}
	r, err := NewRadio(transport.Set{
		Variant: transport.VariantEnocean,
		Line:    mod,
		RX:      mod,
		Radio:   mod,
		Sleep:   sl,
	}, policy, nil)
	require.NoError(t, err)
	return r, sl
}

func TestRadio_HandshakeAcquiresIdentity(t *testing.T) {
	mod := newFakeModule(append([]byte{0x00, 0x13}, response(testID)...))
	r, sl := newRadio(t, mod, PolicyTransmit)

	require.NoError(t, r.Enable(context.Background()))
	id, ok := r.Identity()
	require.True(t, ok)
	assert.Equal(t, testID, id)
	assert.Equal(t, ReadBaseIDCommand[:], mod.sentBytes())
	assert.Equal(t, []uint32{ChargeMs, StartupMs}, sl.calls[:2])
	assert.Less(t, len(sl.calls), 2+HandshakePolls)

	// second enable skips the handshake
	n := len(mod.sentBytes())
	require.NoError(t, r.Enable(context.Background()))
	assert.Len(t, mod.sentBytes(), n)

	require.NoError(t, r.Send(Glucose(ID{}, GlucoseReport{Glucose: 10})))
	wire := mod.sentBytes()[n:]
	got, _, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, testID.Sender(), got.Sender, "sender comes from the learned identity")

	r.Disable()
	assert.Equal(t, []bool{true, true, false}, mod.powered)
	assert.Equal(t, uint32(DischargeMs), sl.calls[len(sl.calls)-1])
}

func TestRadio_HandshakeTimeoutPolicies(t *testing.T) {
	mod := newFakeModule(nil)
	r, sl := newRadio(t, mod, PolicySuppress)

	err := r.Enable(context.Background())
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.Len(t, sl.calls, 2+HandshakePolls)

	assert.ErrorIs(t, r.Send(Glucose(ID{}, GlucoseReport{})), ErrNoIdentity)

	// handshake is attempted once per power cycle
	require.NoError(t, r.Enable(context.Background()))

	mod2 := newFakeModule(nil)
	r2, _ := newRadio(t, mod2, PolicyTransmit)
	require.ErrorIs(t, r2.Enable(context.Background()), ErrHandshakeTimeout)
	n := len(mod2.sentBytes())
	require.NoError(t, r2.Send(Glucose(ID{}, GlucoseReport{})))
	got, _, err := Decode(mod2.sentBytes()[n:])
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xFF, 0, 0, 0}, got.Sender)
}

func TestRadio_HandshakeHonoursContext(t *testing.T) {
	mod := newFakeModule(nil)
	r, sl := newRadio(t, mod, PolicyTransmit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Handshake(ctx), ErrHandshakeTimeout)
	assert.Empty(t, sl.calls)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyTransmit, p)

	p, err = ParsePolicy("Suppress")
	require.NoError(t, err)
	assert.Equal(t, PolicySuppress, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}
