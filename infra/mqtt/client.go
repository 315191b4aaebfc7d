// Package mqtt bridges the live plant state to an MQTT broker. Every
// snapshot point is published on its own retained topic so that a
// supervisory system can read the latest value of any point at any time.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/tunnelctl/core/factory"
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// DefaultTopicPrefix roots every topic when none is configured.
const DefaultTopicPrefix = "tunnel"

// Status payloads published on <prefix>/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// StatePublisher implements telemetry.StatePublisher over MQTT.
type StatePublisher struct {
	cli        pahoClient
	prefix     string
	qos        byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger

	mu     sync.Mutex
	closed bool
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewStatePublisher connects to the broker. The status topic is set to
// online on every connection and to offline by the broker when the
// connection is lost.
func NewStatePublisher(cfg Config) (*StatePublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tunnelctl-" + uuid.NewString()[:8]
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SetWill(prefix+"/status", StatusOffline, cfg.QoS, true)

	log := logger.New("mqtt_state")
	sp := &StatePublisher{
		prefix:     prefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}
	if sp.maxRetries <= 0 {
		sp.maxRetries = 3
	}
	if sp.backoff <= 0 {
		sp.backoff = 100 * time.Millisecond
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Publish(prefix+"/status", cfg.QoS, true, StatusOnline); token.Wait() && token.Error() != nil {
			log.Errorf("status publish error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	sp.cli = c
	return sp, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// PointMessage is the payload of a point topic.
type PointMessage struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	RunID     string  `json:"run_id"`
}

// Topic returns the topic of a point for a strategy, e.g.
// tunnel/multi_agent/pump/1.1/flow.
func (p *StatePublisher) Topic(strategy, point string) string {
	return p.prefix + "/" + strategy + "/" + point
}

// PublishState publishes every snapshot point on its retained topic.
func (p *StatePublisher) PublishState(s coretelemetry.Snapshot) error {
	var errs []error
	for _, pt := range s.Points() {
		payload, err := json.Marshal(PointMessage{Value: pt.Value, Timestamp: s.Timestamp.UnixMilli(), RunID: s.RunID})
		if err != nil {
			return err
		}
		if err := p.publish(p.Topic(string(s.Strategy), pt.Name), true, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDecision publishes a decision log entry on <prefix>/<strategy>/events.
func (p *StatePublisher) RecordDecision(d coretelemetry.Decision) error {
	payload, err := json.Marshal(struct {
		RunID     string `json:"run_id"`
		Source    string `json:"source"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}{d.RunID, d.Event.Source, d.Event.Message, d.Event.Timestamp.UnixMilli()})
	if err != nil {
		return err
	}
	return p.publish(p.Topic(string(d.Strategy), "events"), false, payload)
}

func (p *StatePublisher) publish(topic string, retained bool, payload []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("mqtt: publish on %s after close", topic)
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// Close marks the plant offline and disconnects.
func (p *StatePublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Publish(p.prefix+"/status", p.qos, true, StatusOffline).Wait()
		p.cli.Disconnect(250)
	}
	return nil
}

func init() {
	_ = coretelemetry.RegisterPublisher("mqtt", func(conf map[string]any) (coretelemetry.StatePublisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		pub, err := NewStatePublisher(c)
		if err != nil {
			return nil, err
		}
		return pub, nil
	})
}
