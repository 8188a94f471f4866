package backend

import "strings"

// Route resolves a channel_address to a backend kind and the physical
// address to hand to it.
//
// Addresses follow a "KIND::address" convention. A bare address (no "::")
// is a queue URL and selects SQS. "RABBITMQ::key" selects the broker with
// key as the routing key. Any other prefixed address is a fan-out topic
// and selects SNS with the remainder as the topic ARN.
//
// Route is a pure parse and accepts any string; a nonsense address simply
// fails later at the transport.
func Route(channelAddress string) (kind, address string) {
	prefix, rest, found := strings.Cut(channelAddress, "::")
	if !found {
		return SQS, channelAddress
	}

	if strings.EqualFold(prefix, "RABBITMQ") {
		return RABBITMQ, rest
	}

	return SNS, rest
}
