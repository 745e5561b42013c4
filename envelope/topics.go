package envelope

import (
	"fmt"
	"strings"
)

// Topic conventions for the HSP mesh. Wildcards follow MQTT rules:
// "+" matches exactly one segment, "#" matches all remaining segments
// and may only appear last.

// CapabilityTopic returns the topic an agent advertises its capabilities on.
func CapabilityTopic(aiID string) string {
	return fmt.Sprintf("hsp/capabilities/advertisements/%s", aiID)
}

// RequestTopic returns the topic task requests for target are sent to.
// A target that already contains a "/" is treated as a full topic.
func RequestTopic(target string) string {
	if strings.Contains(target, "/") {
		return target
	}
	return fmt.Sprintf("hsp/requests/%s", target)
}

// ResultTopic returns the topic task results for target are sent to.
func ResultTopic(target string) string {
	if strings.Contains(target, "/") {
		return target
	}
	return fmt.Sprintf("hsp/results/%s", target)
}

// AckTopic returns the topic acknowledgements for sender are sent to.
func AckTopic(senderAIID string) string {
	return fmt.Sprintf("hsp/acks/%s", senderAIID)
}

// KnowledgeFactsTopic is the conventional prefix for fact publication.
const KnowledgeFactsTopic = "hsp/knowledge/facts"

// MatchTopic reports whether an MQTT-style filter matches a concrete topic.
// The filter may contain "+" and a trailing "#"; the topic must be concrete.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, fp := range fparts {
		if fp == "#" {
			// "#" must be the last filter segment; it matches everything
			// from here on, including zero segments.
			return i == len(fparts)-1
		}
		if i >= len(tparts) {
			return false
		}
		if fp != "+" && fp != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}

// ValidFilter reports whether a subscription filter is well-formed:
// "#" only as the final segment, "+" only as a whole segment.
func ValidFilter(filter string) bool {
	if filter == "" {
		return false
	}
	parts := strings.Split(filter, "/")
	for i, p := range parts {
		if strings.Contains(p, "#") && (p != "#" || i != len(parts)-1) {
			return false
		}
		if strings.Contains(p, "+") && p != "+" {
			return false
		}
	}
	return true
}
