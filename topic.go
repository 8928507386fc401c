package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MQTT wire limits used for argument validation before any network I/O,
// matching the "fail fast, no state mutation" argument-validation policy.
const (
	maxTopicLength    = 65535
	maxPayloadSize    = 268435455 // 256MB - 1, the MQTT remaining-length ceiling
	maxClientIDLength = 23        // recommended, not enforced: brokers commonly accept longer ids
)

// validatePublishTopic rejects publish topics containing wildcards or
// otherwise malformed per the MQTT topic-name rules.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrBadArg)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic length %d exceeds maximum %d", ErrBadArg, len(topic), maxTopicLength)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: publish topic must not contain wildcards", ErrBadArg)
	}
	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("%w: topic contains a null byte", ErrBadArg)
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrBadArg)
	}
	return nil
}

// validateSubscribeFilter rejects topic filters whose wildcard placement
// violates MQTT-4.7.1-2/3: '+' and '#' must each occupy an entire level, and
// '#' must be the last level.
func validateSubscribeFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic filter cannot be empty", ErrBadArg)
	}
	if len(filter) > maxTopicLength {
		return fmt.Errorf("%w: topic filter length %d exceeds maximum %d", ErrBadArg, len(filter), maxTopicLength)
	}
	if strings.Contains(filter, "\x00") {
		return fmt.Errorf("%w: topic filter contains a null byte", ErrBadArg)
	}
	if !utf8.ValidString(filter) {
		return fmt.Errorf("%w: topic filter is not valid UTF-8", ErrBadArg)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy an entire topic level", ErrBadArg)
		}
		if strings.Contains(level, "#") {
			if level != "#" {
				return fmt.Errorf("%w: '#' must occupy an entire topic level", ErrBadArg)
			}
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last topic level", ErrBadArg)
			}
		}
	}
	return nil
}

func validatePayload(payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d", ErrBadArg, len(payload), maxPayloadSize)
	}
	return nil
}
