package rollo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/rfedge/internal/gpio"
)

const code = "0FF0F0F0FFFF"

func TestSuffixRoundTrip(t *testing.T) {
	want := map[Direction]string{Up: "F0F", Pause: "FFF", Down: "101"}
	for dir, suffix := range want {
		require.Equal(t, suffix, dir.Suffix())
		back, err := DirectionFromSuffix(dir.Suffix())
		require.NoError(t, err)
		require.Equal(t, dir, back)
	}
	_, err := DirectionFromSuffix("000")
	require.ErrorIs(t, err, ErrUnknownDirection)
}

func TestSymbolInverses(t *testing.T) {
	zero, _ := Symbol('0')
	one, _ := Symbol('1')
	f, _ := Symbol('F')
	q, _ := Symbol('Q')

	require.Equal(t, [2]gpio.PulseSpec{{High: 1, Low: 3}, {High: 1, Low: 3}}, zero)
	require.Equal(t, [2]gpio.PulseSpec{{High: 3, Low: 1}, {High: 3, Low: 1}}, one)
	for i := 0; i < 2; i++ {
		require.Equal(t, zero[i].Inverse(), one[i])
		require.Equal(t, f[i].Inverse(), q[i])
	}

	_, err := Symbol('X')
	require.ErrorIs(t, err, ErrIllegalSymbol)
}

func TestNewDeviceValidatesCode(t *testing.T) {
	line := gpio.NewOutputLine(gpio.NewRecorder(0), nil)
	for _, bad := range []string{"", "01X", "0Q1"} {
		_, err := NewDevice("r", bad, line, 0)
		require.ErrorIs(t, err, ErrInvalidCode, bad)
	}
	_, err := NewDevice("r", code, line, 0)
	require.NoError(t, err)
}

func TestWaveformRejectsIllegalSymbol(t *testing.T) {
	_, err := Waveform("01Z")
	require.ErrorIs(t, err, ErrIllegalSymbol)
}

func TestSendDown(t *testing.T) {
	rec := gpio.NewRecorder(0)
	d, err := NewDevice("kitchen", code, gpio.NewOutputLine(rec, nil), 0)
	require.NoError(t, err)

	require.Equal(t, code+"101", d.Code(Down))
	require.NoError(t, d.Send(Down))

	wf, err := Waveform(code + "101")
	require.NoError(t, err)
	require.Len(t, wf, 1+2*(len(code)+3))

	// first symbol of the suffix is '1'
	suffixStart := 1 + 2*len(code)
	require.Equal(t, []gpio.PulseSpec{{High: 3, Low: 1}, {High: 3, Low: 1}}, wf[suffixStart:suffixStart+2])

	write := gpio.Expand(wf, PulseLength)
	events := rec.Events()
	require.Len(t, events, Repeats*len(write)+1)
	for i := 0; i < Repeats; i++ {
		require.Equal(t, write, events[i*len(write):(i+1)*len(write)])
	}
	require.Equal(t, gpio.Event{Level: gpio.Low, Duration: PulseLength}, events[len(events)-1])
	require.Equal(t, gpio.Event{Level: gpio.High, Duration: 18 * PulseLength}, events[0])
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"u": Up, "UP": Up, "d": Down, "down": Down, "p": Pause, "stop": Pause} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	require.ErrorIs(t, err, ErrUnknownDirection)
}

func TestSendUnknownDirection(t *testing.T) {
	rec := gpio.NewRecorder(0)
	d, err := NewDevice("r", code, gpio.NewOutputLine(rec, nil), 0)
	require.NoError(t, err)
	require.ErrorIs(t, d.Send(Direction(9)), ErrUnknownDirection)
	require.Empty(t, rec.Events())
}
