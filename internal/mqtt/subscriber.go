// Package mqtt adapts an Eclipse Paho client to the correlation transport.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/wintech-vn/drilltrack/internal/correlation"
)

// Config holds the broker connection settings.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	TLSEnabled bool
	CACerts    string // path to a PEM bundle, optional
	ClientID   string
	QoS        byte
}

// Subscriber is a thin wrapper over a Paho client implementing
// correlation.Transport.
type Subscriber struct {
	cfg    Config
	log    zerolog.Logger
	client paho.Client
}

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, per the paho API
)

// New creates a subscriber for the configured broker. The connection is not
// opened until Connect.
func New(cfg Config, logger zerolog.Logger) (*Subscriber, error) {
	s := &Subscriber{
		cfg: cfg,
		log: logger.With().Str("module", "mqtt").Logger(),
	}

	scheme := "tcp"
	opts := paho.NewClientOptions()
	if cfg.TLSEnabled {
		scheme = "tls"
		tlsCfg := &tls.Config{}
		if cfg.CACerts != "" {
			pem, err := os.ReadFile(cfg.CACerts)
			if err != nil {
				return nil, fmt.Errorf("reading CA bundle %s: %w", cfg.CACerts, err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.CACerts)
			}
			tlsCfg.RootCAs = pool
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetOnConnectHandler(func(paho.Client) {
		s.log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("broker connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn().Err(err).Msg("broker connection lost")
	})

	s.client = paho.NewClient(opts)
	return s, nil
}

// Connect opens the broker connection, waiting up to the connect timeout.
func (s *Subscriber) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connecting to %s:%d: timeout after %s", s.cfg.Host, s.cfg.Port, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	return nil
}

// Subscribe registers the handler for the given topic filter. Paho invokes
// handlers on its own goroutines.
func (s *Subscriber) Subscribe(topic string, handler correlation.MessageHandler) error {
	token := s.client.Subscribe(topic, s.cfg.QoS, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribing to %s: timeout after %s", topic, subscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.log.Info().Str("topic", topic).Uint8("qos", s.cfg.QoS).Msg("subscribed")
	return nil
}

// Disconnect closes the broker connection after a short quiesce.
func (s *Subscriber) Disconnect() {
	if s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}
