package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetChannels(t *testing.T) {
	app := NewApp()

	var events []AppEvent
	app.Subscribe(func(ev AppEvent) { events = append(events, ev) })

	require.NoError(t, app.ResetChannels(3, OriginDevice))
	require.Equal(t, 3, app.NumChannels())
	for i, ch := range app.Channels() {
		assert.Equal(t, i, ch.ID())
		assert.Equal(t, DefaultParams(), ch.Params())
	}

	require.Len(t, events, 1)
	assert.Equal(t, FieldChannels, events[0].Field)
	assert.Empty(t, events[0].Removed)
	assert.Len(t, events[0].Added, 3)

	first := app.Channels()
	require.NoError(t, app.ResetChannels(2, OriginDevice))
	require.Len(t, events, 2)
	assert.Equal(t, first, events[1].Removed)
	assert.Len(t, events[1].Added, 2)
}

func TestResetChannelsTooMany(t *testing.T) {
	app := NewApp()
	require.NoError(t, app.ResetChannels(4, OriginDevice))

	err := app.ResetChannels(MaxChannels+1, OriginDevice)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyChannels))
	assert.Equal(t, 4, app.NumChannels())
}

func TestChannelUpdateReportsChangedFieldsWithOrigin(t *testing.T) {
	ch := NewChannel(1)

	var got []ChannelEvent
	cancel := ch.Subscribe(func(ev ChannelEvent) { got = append(got, ev) })
	defer cancel()

	ch.Update(OriginDevice, func(p *Params, tel *Telemetry) {
		p.P = 1
		p.I = 2
		p.DLambda = 1 // unchanged default
		tel.Input = 10.5
	})

	require.Len(t, got, 3)
	assert.Equal(t, FieldP, got[0].Field)
	assert.Equal(t, FieldI, got[1].Field)
	assert.Equal(t, FieldInput, got[2].Field)
	for _, ev := range got {
		assert.Equal(t, OriginDevice, ev.Origin)
		assert.Same(t, ch, ev.Channel)
	}

	got = nil
	ch.SetP(1)
	assert.Empty(t, got, "setting an equal value must not notify")

	ch.SetP(3)
	require.Len(t, got, 1)
	assert.Equal(t, OriginLocal, got[0].Origin)
	assert.Equal(t, float32(3), got[0].Value)
}

func TestChannelSetParamRejectsTelemetry(t *testing.T) {
	ch := NewChannel(0)
	assert.Error(t, ch.SetParam(FieldInput, 1))
	assert.NoError(t, ch.SetParam(FieldInputMax, 4))
	assert.Equal(t, float32(4), ch.Params().InputMax)
}

func TestSubscribeCancel(t *testing.T) {
	ch := NewChannel(0)
	calls := 0
	cancel := ch.Subscribe(func(ChannelEvent) { calls++ })

	ch.SetP(1)
	cancel()
	cancel()
	ch.SetP(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, ch.obs.len())
}

func TestRecordSamplePrunesWindow(t *testing.T) {
	ch := NewChannel(0)
	ch.Update(OriginDevice, func(p *Params, tel *Telemetry) {
		p.SetPoint = 90
		tel.Input = 1
		tel.Output = 2
	})

	for i := 0; i <= 150; i++ {
		ch.RecordSample(float32(i) * 0.1)
	}

	s := ch.Series()
	require.Equal(t, len(s.Times), len(s.SetPoints))
	require.Equal(t, len(s.Times), len(s.Inputs))
	require.Equal(t, len(s.Times), len(s.Outputs))
	assert.LessOrEqual(t, s.Span(), SeriesWindow)
	assert.InDelta(t, 15.0, s.Times[len(s.Times)-1], 1e-4)
	assert.InDelta(t, 5.0, s.Times[0], 0.11)
	for i := 1; i < len(s.Times); i++ {
		assert.LessOrEqual(t, s.Times[i-1], s.Times[i])
	}
	assert.Equal(t, float32(90), s.SetPoints[0])
}

func TestRecordSampleRestartsOnEarlierTime(t *testing.T) {
	ch := NewChannel(0)
	ch.RecordSample(5)
	ch.RecordSample(6)
	ch.RecordSample(1)

	s := ch.Series()
	assert.Equal(t, []float32{1}, s.Times)
	assert.Equal(t, 1, s.Len())
}

func TestUpdateGlobals(t *testing.T) {
	app := NewApp()

	var got []AppEvent
	app.Subscribe(func(ev AppEvent) { got = append(got, ev) })

	app.UpdateGlobals(OriginDevice, func(g *Globals) {
		g.Set(GlobalNumServos, 4)
		g.Set(GlobalServoMaxAngle, 180)
	})
	require.Len(t, got, 2)
	assert.Equal(t, GlobalNumServos, got[0].Global)
	assert.Equal(t, GlobalServoMaxAngle, got[1].Global)
	assert.Equal(t, OriginDevice, got[1].Origin)

	got = nil
	app.SetGlobal(GlobalServoMaxAngle, 170)
	require.Len(t, got, 1)
	assert.Equal(t, OriginLocal, got[0].Origin)
	assert.Equal(t, float32(170), app.Global(GlobalServoMaxAngle))
}

func TestParseGlobalVar(t *testing.T) {
	tests := []struct {
		name string
		want GlobalVar
		ok   bool
	}{
		{"num_servos", GlobalNumServos, true},
		{" Servo_Min_Angle ", GlobalServoMinAngle, true},
		{"deadband_max_deviation", GlobalDeadbandMaxDeviation, true},
		{"bogus", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseGlobalVar(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFlagsNotifyOnlyOnChange(t *testing.T) {
	app := NewApp()

	var fields []AppField
	app.Subscribe(func(ev AppEvent) { fields = append(fields, ev.Field) })

	app.SetTarget("COM3")
	app.SetTarget("COM3")
	app.SetPidEnabled(true)
	app.SetPollTelemetry(true) // already the default
	app.SetConnected(true)
	app.SetLoopTiming(LoopTiming{DeltaTime: 0.01})

	assert.Equal(t, []AppField{FieldTarget, FieldPidEnabled, FieldConnected, FieldLoopTiming}, fields)
}
