package grid

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SummaryMessage is the payload published to <prefix>/summary.
type SummaryMessage struct {
	Summary
	Timestamp int64 `json:"timestamp"`
}

// Publisher publishes built networks to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *SummaryMessage
	mu            sync.RWMutex
}

// NewPublisher creates a new result publisher. MQTT_PUBLISH_PREFIX overrides
// prefix; an empty prefix falls back to "gridmesh".
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "gridmesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // Retain so late subscribers get the latest network
	}
}

// PublishResult publishes the run summary and the final network layers.
func (p *Publisher) PublishResult(res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &SummaryMessage{Summary: Summarize(res), Timestamp: time.Now().Unix()}
	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	if err := p.publishJSON("summary", msg); err != nil {
		log.Printf("Error publishing summary for run %s: %v", res.RunID, err)
		return err
	}
	if err := p.publishJSON("network/buses", NodesToFeatureCollection(res.Network.Nodes)); err != nil {
		log.Printf("Error publishing buses for run %s: %v", res.RunID, err)
		return err
	}
	if err := p.publishJSON("network/lines", LinesToFeatureCollection(res.Network.Edges)); err != nil {
		log.Printf("Error publishing lines for run %s: %v", res.RunID, err)
		return err
	}

	log.Printf("Published network %s: %d bus(es), %d line(s)",
		res.RunID, msg.Buses, msg.Lines)
	return nil
}

func (p *Publisher) publishJSON(suffix string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastSummary returns the most recently published summary
func (p *Publisher) LastSummary() (*SummaryMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil, false
	}
	msg := *p.last
	return &msg, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
