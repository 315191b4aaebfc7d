package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/model"
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements paho.Client for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	}
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

func (m *mockClient) byTopic() map[string]published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]published, len(m.published))
	for _, p := range m.published {
		out[p.topic] = p
	}
	return out
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (d dummyToken) Error() error { return d.err }

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestPublishStateRetainedTopics(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewStatePublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", TopicPrefix: "/plant/", QoS: 1})
	require.NoError(t, err)

	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "plant/status", mc.opts.WillTopic)
	assert.Equal(t, StatusOffline, string(mc.opts.WillPayload))
	assert.Equal(t, StatusOnline, string(mc.byTopic()["plant/status"].payload))

	var flows model.Flows
	flows[model.Pump13] = 1550
	ts := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)
	require.NoError(t, pub.PublishState(coretelemetry.Snapshot{
		RunID: "run-1", Strategy: model.StrategyBaseline, Timestamp: ts, Level: 2.75, Flows: flows,
		Frequencies: coretelemetry.PumpFrequencies(flows),
	}))

	topics := mc.byTopic()
	level, ok := topics["plant/baseline/level"]
	require.True(t, ok)
	assert.True(t, level.retained)
	assert.Equal(t, byte(1), level.qos)
	var msg PointMessage
	require.NoError(t, json.Unmarshal(level.payload, &msg))
	assert.Equal(t, PointMessage{Value: 2.75, Timestamp: ts.UnixMilli(), RunID: "run-1"}, msg)

	pump := topics["plant/baseline/pump/1.3/flow"]
	require.NoError(t, json.Unmarshal(pump.payload, &msg))
	assert.Equal(t, 1550.0, msg.Value)
	hz := topics["plant/baseline/pump/1.3/frequency"]
	require.NoError(t, json.Unmarshal(hz.payload, &msg))
	assert.Greater(t, msg.Value, 40.0)
	// status + 6 plant points + flow and frequency per pump
	assert.Len(t, topics, 1+6+2*model.NumPumps)
}

func TestRecordDecision(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewStatePublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	require.NoError(t, pub.RecordDecision(coretelemetry.Decision{
		RunID: "r", Strategy: model.StrategyMultiAgent, Event: model.Event{Source: "Planner", Message: "ok"},
	}))
	ev, ok := mc.byTopic()["tunnel/multi_agent/events"]
	require.True(t, ok)
	assert.False(t, ev.retained)
	assert.Contains(t, string(ev.payload), `"source":"Planner"`)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{nil, errors.New("net fail"), nil}}
	withMock(t, mc)
	pub, err := NewStatePublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, pub.publish("tunnel/x", true, []byte("1")))
	assert.Len(t, mc.published, 3, "status, failed attempt, retry")

	mc.publishErrs = []error{errors.New("a"), errors.New("b")}
	assert.Error(t, pub.publish("tunnel/y", true, []byte("1")))
}

func TestCloseMarksOffline(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewStatePublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.Equal(t, StatusOffline, string(mc.byTopic()["tunnel/status"].payload))
	assert.Error(t, pub.PublishState(coretelemetry.Snapshot{}))
}

func TestNewStatePublisherRequiresBroker(t *testing.T) {
	_, err := NewStatePublisher(Config{})
	assert.Error(t, err)
}
