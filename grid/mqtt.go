package grid

import (
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient manages the broker connection used to publish results
type MQTTClient struct {
	client      mqtt.Client
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT creates the MQTT client from the environment and configuration.
// Environment variables take precedence over the config file. If no broker
// is configured, MQTT is disabled and this returns nil.
func InitMQTT(config *Config) (*MQTTClient, error) {
	var mc MQTTConfig
	if config != nil {
		mc = config.MQTT
	}

	broker := envOr("MQTT_BROKER", mc.Broker)
	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	c := &MQTTClient{}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(envOr("MQTT_CLIENT_ID", mc.ClientID, "gridmesh"))
	if username := envOr("MQTT_USERNAME", mc.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", mc.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()

	return c, nil
}

// envOr returns the environment variable key, or the first non-empty fallback.
func envOr(key string, fallbacks ...string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return ""
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected")
	c.setConnected(true)
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// WaitConnected blocks until the client is connected or timeout passes.
func (c *MQTTClient) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.IsConnected() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps a provided mqtt.Client, for tests
func newMQTTClientWithMock(client mqtt.Client) *MQTTClient {
	return &MQTTClient{client: client}
}
