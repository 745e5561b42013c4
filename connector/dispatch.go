package connector

import (
	"time"

	"github.com/catcatai/hsp/envelope"
	"github.com/catcatai/hsp/transport"
)

// Dispatch path: one method per typed internal channel. Each decodes the
// payload, invokes every registered callback with per-callback panic
// isolation, and finally honors the acknowledgement protocol. The ACK is
// sent even when a callback failed: it confirms receipt, not processing.

func (c *Connector) dispatchFact(message any) {
	env, ok := message.(*envelope.Envelope)
	if !ok {
		return
	}
	defer c.observeDispatch(env, time.Now())

	payload, err := env.DecodePayload(c.registry)
	if err != nil {
		c.logger.Warn("failed to decode fact payload", "message_id", env.MessageID, "error", err)
		c.maybeAck(env)
		return
	}
	fact := payload.(*envelope.Fact)

	c.mu.RLock()
	cbs := make([]FactCallback, len(c.factCbs))
	copy(cbs, c.factCbs)
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.safely("fact", func() { cb(fact, env) })
	}
	c.maybeAck(env)
}

func (c *Connector) dispatchCapability(message any) {
	env, ok := message.(*envelope.Envelope)
	if !ok {
		return
	}
	defer c.observeDispatch(env, time.Now())

	payload, err := env.DecodePayload(c.registry)
	if err != nil {
		c.logger.Warn("failed to decode capability payload", "message_id", env.MessageID, "error", err)
		c.maybeAck(env)
		return
	}
	ad := payload.(*envelope.CapabilityAdvertisement)

	c.mu.RLock()
	cbs := make([]CapabilityCallback, len(c.capCbs))
	copy(cbs, c.capCbs)
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.safely("capability_advertisement", func() { cb(ad, env) })
	}
	c.maybeAck(env)
}

func (c *Connector) dispatchTaskRequest(message any) {
	env, ok := message.(*envelope.Envelope)
	if !ok {
		return
	}
	defer c.observeDispatch(env, time.Now())

	payload, err := env.DecodePayload(c.registry)
	if err != nil {
		c.logger.Warn("failed to decode task request payload", "message_id", env.MessageID, "error", err)
		c.maybeAck(env)
		return
	}
	req := payload.(*envelope.TaskRequest)

	c.mu.RLock()
	cbs := make([]TaskRequestCallback, len(c.requestCbs))
	copy(cbs, c.requestCbs)
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.safely("task_request", func() { cb(req, env) })
	}
	c.maybeAck(env)
}

func (c *Connector) dispatchTaskResult(message any) {
	env, ok := message.(*envelope.Envelope)
	if !ok {
		return
	}
	defer c.observeDispatch(env, time.Now())

	payload, err := env.DecodePayload(c.registry)
	if err != nil {
		c.logger.Warn("failed to decode task result payload", "message_id", env.MessageID, "error", err)
		c.maybeAck(env)
		return
	}
	res := payload.(*envelope.TaskResult)

	// Settle the pending-request table. A result for an unknown
	// correlation id is delivered anyway but flagged as stray.
	if env.CorrelationID != "" {
		c.mu.Lock()
		if _, known := c.pending[env.CorrelationID]; known {
			delete(c.pending, env.CorrelationID)
		} else {
			c.logger.Warn("task result with unknown correlation id",
				"correlation_id", env.CorrelationID,
				"request_id", res.RequestID)
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	cbs := make([]TaskResultCallback, len(c.resultCbs))
	copy(cbs, c.resultCbs)
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.safely("task_result", func() { cb(res, env) })
	}
	c.maybeAck(env)
}

func (c *Connector) dispatchAck(message any) {
	env, ok := message.(*envelope.Envelope)
	if !ok {
		return
	}

	payload, err := env.DecodePayload(c.registry)
	if err != nil {
		c.logger.Warn("failed to decode acknowledgement payload", "message_id", env.MessageID, "error", err)
		return
	}
	ack := payload.(*envelope.Acknowledgement)

	c.mu.RLock()
	cbs := make([]AckCallback, len(c.ackCbs))
	copy(cbs, c.ackCbs)
	c.mu.RUnlock()

	for _, cb := range cbs {
		c.safely("acknowledgement", func() { cb(ack, env) })
	}
	// Acknowledgements are never themselves acknowledged.
}

// maybeAck sends exactly one Acknowledgement for envelopes that requested
// one, regardless of how consumer callbacks fared.
func (c *Connector) maybeAck(env *envelope.Envelope) {
	if !env.RequiresAck() || env.MessageType == envelope.TypeAcknowledgement {
		return
	}

	ackEnv, err := envelope.Seal(
		&envelope.Acknowledgement{
			Status:          "received",
			AckTimestamp:    time.Now().UTC(),
			TargetMessageID: env.MessageID,
		},
		envelope.PatternAck, c.aiID, env.SenderAIID,
		envelope.WithCorrelationID(env.MessageID))
	if err != nil {
		c.logger.Error("failed to build acknowledgement", "target_message_id", env.MessageID, "error", err)
		return
	}

	c.publishEnvelope(envelope.AckTopic(env.SenderAIID), ackEnv, transport.QoSAtLeastOnce)
	if c.metrics != nil {
		c.metrics.AcksSent.Inc()
	}
}

func (c *Connector) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panic isolated", "kind", kind, "panic", r)
		}
	}()
	fn()
}

func (c *Connector) observeDispatch(env *envelope.Envelope, start time.Time) {
	if c.metrics != nil {
		c.metrics.DispatchDuration.WithLabelValues(env.MessageType).
			Observe(time.Since(start).Seconds())
	}
}
