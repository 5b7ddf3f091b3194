package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipsterbrown/servopid/internal/testutil/testlog"
	"github.com/hipsterbrown/servopid/model"
	"github.com/hipsterbrown/servopid/servopid"
	"github.com/hipsterbrown/servopid/transports"
)

type fixture struct {
	server *Server
	engine *servopid.Engine
	app    *model.App
	mock   *transports.MockTransport
}

func newFixture(t *testing.T, channels int) *fixture {
	t.Helper()

	logger := testlog.Start(t)
	reg := prometheus.NewRegistry()
	mock := transports.NewMock()
	dialer := transports.Dialer{Mock: mock}
	engine := servopid.NewEngine(servopid.EngineConfig{
		Dialer:       dialer.Dial,
		PollInterval: time.Hour,
		Logger:       logger,
		Metrics:      servopid.NewMetrics(reg),
	})
	t.Cleanup(func() { engine.Close() })

	app := model.NewApp()
	app.SetTarget(transports.TargetMock)
	require.NoError(t, engine.SetModel(app))

	mock.InjectLine("NS " + string(rune('0'+channels)))
	require.NoError(t, engine.Invoke(func() {}))
	mock.ClearWritten()

	return &fixture{
		server: New(Config{Engine: engine, App: app, Dialer: dialer, Gatherer: reg, Logger: zerolog.Nop()}),
		engine: engine,
		app:    app,
		mock:   mock,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 2)

	rr := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "Mock", body["target"])
	assert.Equal(t, "discovering", body["phase"])
}

func TestListAndGetServos(t *testing.T) {
	f := newFixture(t, 2)

	rr := f.do(t, http.MethodGet, "/servos", "")
	require.Equal(t, http.StatusOK, rr.Code)
	servos, ok := decode(t, rr)["servos"].([]any)
	require.True(t, ok)
	assert.Len(t, servos, 2)

	rr = f.do(t, http.MethodGet, "/servos/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decode(t, rr)["id"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/servos/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/servos/x", "").Code)
}

func TestSeries(t *testing.T) {
	f := newFixture(t, 1)
	f.engine.PinElapsed(3)
	f.mock.InjectLine("SD 0 1 2 3 4")
	require.NoError(t, f.engine.Invoke(func() {}))

	rr := f.do(t, http.MethodGet, "/servos/0/series", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, []any{float64(3)}, body["times"])
	assert.Equal(t, []any{float64(1)}, body["inputs"])
}

func TestSetParamSendsFrame(t *testing.T) {
	f := newFixture(t, 2)

	rr := f.do(t, http.MethodPut, "/servos/1/params/set_point", `{"value": 90}`)
	require.Equal(t, http.StatusOK, rr.Code)

	ch, _ := f.app.Channel(1)
	assert.Equal(t, float32(90), ch.Params().SetPoint)

	frames := f.mock.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, servopid.OpSetServoParamFloat, frames[0].Opcode)
	assert.Equal(t, servopid.ServoParamPayload(1, servopid.ParamSetPoint, 90), frames[0].Payload)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/servos/1/params/gain", `{"value": 1}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/servos/1/params/p", `{}`).Code)
}

func TestGlobals(t *testing.T) {
	f := newFixture(t, 1)

	rr := f.do(t, http.MethodPut, "/globals/servo_max_angle", `{"value": 30}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float32(30), f.app.Global(model.GlobalServoMaxAngle))

	frames := f.mock.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, servopid.OpSetGlobalVar, frames[0].Opcode)

	rr = f.do(t, http.MethodGet, "/globals", "")
	require.Equal(t, http.StatusOK, rr.Code)
	globals, ok := decode(t, rr)["globals"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(30), globals["servo_max_angle"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/globals/bogus", `{"value": 1}`).Code)
}

func TestPidAndPoll(t *testing.T) {
	f := newFixture(t, 1)

	rr := f.do(t, http.MethodPut, "/pid", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, f.app.PidEnabled())
	frames := f.mock.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, servopid.OpEnableRegulator, frames[0].Opcode)

	rr = f.do(t, http.MethodPut, "/poll", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.app.PollTelemetry())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/pid", `{"on": true}`).Code)
}

func TestSetTargetReconnects(t *testing.T) {
	f := newFixture(t, 1)

	rr := f.do(t, http.MethodPut, "/target", `{"target": ""}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["connected"])
	assert.Equal(t, servopid.PhaseDisconnected, f.engine.Phase())

	rr = f.do(t, http.MethodPut, "/target", `{"target": "Mock"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["connected"])
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		ops  []servopid.Opcode
	}{
		{"save-eeprom", []servopid.Opcode{servopid.OpSaveEeprom}},
		{"load-eeprom", []servopid.Opcode{servopid.OpLoadEeprom, servopid.OpGetNumServos, servopid.OpGetGlobalVars}},
		{"reset-to-default", []servopid.Opcode{servopid.OpResetToDefault}},
		{"calibrate", []servopid.Opcode{servopid.OpCalibrateAnalogInput}},
		{"refresh", []servopid.Opcode{servopid.OpGetNumServos, servopid.OpGetGlobalVars}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)

			rr := f.do(t, http.MethodPost, "/commands/"+tt.name, "")
			require.Equal(t, http.StatusOK, rr.Code)

			var ops []servopid.Opcode
			for _, fr := range f.mock.Frames() {
				ops = append(ops, fr.Opcode)
			}
			assert.Equal(t, tt.ops, ops)
		})
	}

	f := newFixture(t, 1)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/commands/explode", "").Code)
}

func TestTargetsOmitSimulatorWithoutEmulator(t *testing.T) {
	f := newFixture(t, 1)

	rr := f.do(t, http.MethodGet, "/targets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	targets, ok := decode(t, rr)["targets"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, targets)
	assert.Equal(t, "Mock", targets[0])
	assert.NotContains(t, targets, "Simulator")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 1)

	rr := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "servopid_transport_connects_total")
	assert.Contains(t, rr.Body.String(), "servopid_protocol_lines_received_total")
}

func TestClosedEngineReturnsUnavailable(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.engine.Close())

	rr := f.do(t, http.MethodPut, "/pid", `{"enabled": true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
