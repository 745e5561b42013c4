// Package hsp is a pub/sub messaging framework for multi-agent
// systems: typed envelopes over MQTT-style topics, capability
// discovery with trust-weighted filtering, and a quality-gated fact
// learning pipeline.
//
// # Architecture
//
// Messages travel through a fixed path in both directions:
//
//	wire -> transport.Connector -> bridge.Bridge -> aligner -> bus.Bus -> connector.Connector -> callbacks
//	callbacks -> connector.Connector -> bus.Bus -> bridge.Bridge -> transport.Connector -> wire
//
// The packages involved:
//
//   - envelope: the wire format. Envelope metadata, typed payloads
//     (Fact, CapabilityAdvertisement, TaskRequest, TaskResult,
//     Acknowledgement), topic conventions, and wildcard matching.
//   - transport: external broker sessions. MQTT via paho and NATS with
//     topic/subject translation, plus an in-process fake for tests.
//   - bridge: validation boundary. Raw bytes are aligned into typed
//     envelopes or dropped with a log line; outbound envelopes are
//     serialized back to the wire.
//   - bus: the internal channel-based pub/sub connecting bridge and
//     connector, with sync and async subscribers.
//   - connector: the application facade. Publish facts, send task
//     requests and results, register per-type callbacks, automatic
//     acknowledgements.
//   - discovery: the capability registry with staleness eviction and
//     trust-filtered queries.
//   - trust: per-agent trust scores, optionally persisted in a
//     JetStream KV bucket.
//   - learning: the fact-quality pipeline. Deduplication, trust
//     weighting, novelty, evidence, composite score, gate, store.
//   - memory: the experience store behind the pipeline, in-memory or
//     SQLite.
//   - service: node assembly and lifecycle.
//
// # Usage
//
// Most applications construct a service.Node from configuration and
// interact through its Connector:
//
//	cfg, err := config.NewLoader("hsp.yaml").Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	node, err := service.NewNode(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer node.Stop(10 * time.Second)
//
//	node.Connector().OnTaskRequest(func(req *envelope.TaskRequest, env *envelope.Envelope) {
//		// handle and reply via SendTaskResult
//	})
package hsp
