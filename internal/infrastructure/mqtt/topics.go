package mqtt

import "fmt"

// Topic scheme shared with the rest of Gray Logic:
// graylogic/{category}/{protocol}/{gateway_or_id}
const (
	TopicPrefix = "graylogic"
	Protocol    = "dali"
)

// Topics builds the MQTT topics of one DALI gateway.
//
//	t := mqtt.Topics{Gateway: "dali-01"}
//	t.Command() // "graylogic/command/dali/dali-01"
type Topics struct {
	Gateway string
}

func (t Topics) gateway(category string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, Protocol, t.Gateway)
}

// Command is where forward frames to transmit arrive.
func (t Topics) Command() string { return t.gateway("command") }

// Request is where query requests arrive.
func (t Topics) Request() string { return t.gateway("request") }

// Ack carries command acknowledgements.
func (t Topics) Ack() string { return t.gateway("ack") }

// Bus carries every frame the gateway receives from the bus.
func (t Topics) Bus() string { return t.gateway("bus") }

// Status carries the retained online/offline presence, including the LWT.
func (t Topics) Status() string { return t.gateway("status") }

// Response returns the topic a query reply is published on.
//
// Example: graylogic/response/dali/req-abc123
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, Protocol, requestID)
}

// Health is the retained health topic shared by all DALI gateways; the
// payload names the gateway.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllBus matches the bus traffic of every DALI gateway.
func (Topics) AllBus() string {
	return fmt.Sprintf("%s/bus/%s/+", TopicPrefix, Protocol)
}
