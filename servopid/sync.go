package servopid

import (
	"github.com/hipsterbrown/servopid/model"
)

// Subscriptions

func (e *Engine) subscribeLocked(m *model.App) {
	e.unsubApp = m.Subscribe(func(ev model.AppEvent) {
		e.onAppEvent(m, ev)
	})
	for _, ch := range m.Channels() {
		e.watchChannelLocked(ch)
	}
}

func (e *Engine) unsubscribeLocked() {
	if e.unsubApp != nil {
		e.unsubApp()
		e.unsubApp = nil
	}
	for ch, cancel := range e.unsubCh {
		cancel()
		delete(e.unsubCh, ch)
	}
}

func (e *Engine) watchChannelLocked(ch *model.Channel) {
	if _, ok := e.unsubCh[ch]; ok {
		return
	}
	e.unsubCh[ch] = ch.Subscribe(e.onChannelEvent)
}

func (e *Engine) unwatchChannelLocked(ch *model.Channel) {
	if cancel, ok := e.unsubCh[ch]; ok {
		cancel()
		delete(e.unsubCh, ch)
	}
}

// resubscribe drops and re-registers every subscription on the current model.
func (e *Engine) resubscribe() {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	e.unsubscribeLocked()
	if e.model != nil {
		e.subscribeLocked(e.model)
	}
}

func (e *Engine) onAppEvent(m *model.App, ev model.AppEvent) {
	if e.Model() != m {
		return
	}

	switch ev.Field {
	case model.FieldChannels:
		e.modelMu.Lock()
		if e.model != m {
			e.modelMu.Unlock()
			return
		}
		for _, ch := range ev.Removed {
			e.unwatchChannelLocked(ch)
		}
		for _, ch := range ev.Added {
			e.watchChannelLocked(ch)
		}
		e.modelMu.Unlock()

	case model.FieldTarget:
		e.resubscribe()
		if err := e.Connect(); err != nil {
			e.log.Warn().Err(err).Msg("Connect failed")
		}

	case model.FieldPidEnabled:
		if ev.Origin != model.OriginLocal {
			return
		}
		e.logSendErr(e.SetRegulator(m.PidEnabled()), OpEnableRegulator)

	case model.FieldPollTelemetry:
		e.pollEnabled.Store(m.PollTelemetry())

	case model.FieldGlobal:
		if ev.Origin != model.OriginLocal {
			return
		}
		e.logSendErr(e.SetGlobal(ev.Global, ev.Value), OpSetGlobalVar)
	}
}

func (e *Engine) onChannelEvent(ev model.ChannelEvent) {
	if ev.Origin != model.OriginLocal || !ev.Field.Tunable() {
		return
	}
	info, ok := ParamForField(ev.Field)
	if !ok {
		return
	}
	e.logSendErr(e.SetServoParam(ev.Channel.ID(), info.ID, ev.Value), OpSetServoParamFloat)
}

func (e *Engine) logSendErr(err error, op Opcode) {
	if err != nil {
		e.log.Warn().Err(err).Str("opcode", op.String()).Msg("Send failed")
	}
}

// Inbound

// onArrival drains t into the framer and queues each completed line for the
// engine goroutine. Stale notifications from a replaced transport are
// ignored.
func (e *Engine) onArrival(t Transport) {
	e.mu.Lock()
	if e.closed || e.transport != t {
		e.mu.Unlock()
		return
	}
	lines := e.framer.Feed(t.ReadExisting())
	session := e.session
	e.mu.Unlock()

	for _, line := range lines {
		line := line
		select {
		case e.work <- func() { e.handleLine(line) }:
		case <-session:
			// Transport replaced while the queue was full.
			return
		case <-e.done:
			return
		}
	}
}

func (e *Engine) handleLine(line string) {
	msg, err := Decode(line)
	if err != nil {
		e.metrics.parseError()
		e.log.Warn().Err(err).Msg("Discarding line")
		return
	}
	e.metrics.lineReceived(msg.Kind())

	m := e.Model()
	if m == nil {
		return
	}
	e.apply(m, msg)
}

func (e *Engine) apply(m *model.App, msg Message) {
	switch msg := msg.(type) {
	case DeltaTime:
		m.SetLoopTiming(model.LoopTiming{
			DeltaTime:    msg.DT,
			MinDeltaTime: msg.MinDT,
			MaxDeltaTime: msg.MaxDT,
		})

	case NumServos:
		e.applyNumServos(m, msg)

	case ServoParams:
		ch, ok := e.channel(m, msg.Channel)
		if !ok {
			return
		}
		ch.Update(model.OriginDevice, func(p *model.Params, _ *model.Telemetry) {
			p.P = msg.P
			p.I = msg.I
			p.D = msg.D
			p.DLambda = msg.DLambda
			p.SetPoint = msg.SetPoint
		})
		if msg.Channel == m.NumChannels()-1 {
			e.logSendErr(e.Send(OpGetServoData, FullBurst), OpGetServoData)
		}

	case ServoData:
		ch, ok := e.channel(m, msg.Channel)
		if !ok {
			return
		}
		ch.Update(model.OriginDevice, func(_ *model.Params, t *model.Telemetry) {
			t.Input = msg.Input
			t.Output = msg.Output
			t.Integrator = msg.Integrator
			t.DFiltered = msg.DFiltered
		})
		ch.RecordSample(e.Elapsed())
		if e.Phase() == PhaseDiscovering && msg.Channel == m.NumChannels()-1 {
			e.setPhase(PhaseSynced)
		}

	case GlobalVars:
		m.UpdateGlobals(model.OriginDevice, msg.Apply)

	case ErrorNotice:
		e.log.Error().Str("device_error", msg.Text).Msg("Controller reported an error, resetting")
		if err := e.Reset(); err != nil {
			e.log.Warn().Err(err).Msg("Reset failed")
		}

	case Ack:
		e.log.Debug().Str("ack", msg.Text).Msg("Received")

	case LogNotice:
		e.log.Info().Str("device", msg.Text).Msg("Controller log")

	case Unknown:
		e.log.Warn().Str("line", msg.Line).Msg("Unknown message")
	}
}

func (e *Engine) applyNumServos(m *model.App, msg NumServos) {
	if err := m.ResetChannels(msg.Count, model.OriginDevice); err != nil {
		e.metrics.parseError()
		e.log.Error().Err(err).Int("count", msg.Count).Msg("Ignoring channel count")
		return
	}

	e.log.Info().Int("count", msg.Count).Msg("Discovered channels")
	if msg.Count == 0 {
		e.setPhase(PhaseSynced)
		return
	}
	e.setPhase(PhaseDiscovering)
	e.logSendErr(e.RequestParams(), OpGetServoParams)
}

func (e *Engine) channel(m *model.App, id int) (*model.Channel, bool) {
	ch, ok := m.Channel(id)
	if !ok {
		e.metrics.parseError()
		e.log.Warn().
			Int("channel", id).
			Int("count", m.NumChannels()).
			Msg("Invalid index")
	}
	return ch, ok
}
