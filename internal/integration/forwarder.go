package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/internal/config"
	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/session"
)

// ForwarderService pushes device status events to external systems
type ForwarderService struct {
	cfg     config.IntegrationsConfig
	manager *session.Manager

	mqttMu     sync.Mutex
	mqttClient mqtt.Client

	httpClient *http.Client
}

// NewForwarderService creates a forwarder service
func NewForwarderService(cfg config.IntegrationsConfig, manager *session.Manager) *ForwarderService {
	return &ForwarderService{
		cfg:     cfg,
		manager: manager,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
	}
}

// Enabled reports whether any integration is configured
func (s *ForwarderService) Enabled() bool {
	return s.cfg.HTTP.Enabled || s.cfg.MQTT.Enabled
}

// Start runs the forwarder until the context is cancelled
func (s *ForwarderService) Start(ctx context.Context) error {
	events, cancel := s.manager.Subscribe()
	defer cancel()

	log.Info().
		Bool("http", s.cfg.HTTP.Enabled).
		Bool("mqtt", s.cfg.MQTT.Enabled).
		Msg("Integration forwarder started")

	for {
		select {
		case <-ctx.Done():
			s.closeMQTT()
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				s.closeMQTT()
				return nil
			}
			s.forward(event)
		}
	}
}

// forward pushes one event to every enabled integration
func (s *ForwarderService) forward(event models.StatusEvent) {
	payload := map[string]interface{}{
		"mac":              event.MAC.String(),
		"connection_state": event.State,
		"status":           event.Snapshot,
		"timestamp":        time.Now(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal forward data")
		return
	}

	if s.cfg.HTTP.Enabled {
		go s.forwardToHTTP(event, data)
	}
	if s.cfg.MQTT.Enabled {
		go s.forwardToMQTT(event, data)
	}
}

// forwardToHTTP posts one event to the webhook endpoint
func (s *ForwarderService) forwardToHTTP(event models.StatusEvent, data []byte) {
	req, err := http.NewRequest("POST", s.cfg.HTTP.Endpoint, bytes.NewBuffer(data))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("Failed to forward status to HTTP")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("HTTP forward failed")
	} else {
		log.Debug().
			Str("device", event.MAC.String()).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("Status forwarded to HTTP")
	}
}

// forwardToMQTT publishes one event to the configured broker
func (s *ForwarderService) forwardToMQTT(event models.StatusEvent, data []byte) {
	client := s.getMQTTClient()
	if client == nil {
		return
	}

	topic := strings.ReplaceAll(s.cfg.MQTT.TopicPattern, "{mac}",
		strings.ToLower(strings.ReplaceAll(event.MAC.String(), ":", "")))

	token := client.Publish(topic, s.cfg.MQTT.QoS, false, data)
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("Failed to publish to MQTT")
		} else {
			log.Debug().
				Str("device", event.MAC.String()).
				Str("topic", topic).
				Msg("Status forwarded to MQTT")
		}
	} else {
		log.Error().
			Str("topic", topic).
			Msg("MQTT publish timeout")
	}
}

// getMQTTClient returns the broker client, connecting on first use
func (s *ForwarderService) getMQTTClient() mqtt.Client {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		return s.mqttClient
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.MQTT.BrokerURL)
	opts.SetClientID("motion-hub-forwarder")

	if s.cfg.MQTT.Username != "" {
		opts.SetUsername(s.cfg.MQTT.Username)
		opts.SetPassword(s.cfg.MQTT.Password)
	}

	if s.cfg.MQTT.TLS {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: true,
		})
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT client connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	if token.WaitTimeout(10*time.Second) && token.Error() == nil {
		s.mqttClient = client
		return client
	}

	log.Error().
		Err(token.Error()).
		Str("broker", s.cfg.MQTT.BrokerURL).
		Msg("Failed to connect MQTT client")

	return nil
}

// closeMQTT disconnects the broker client if one is up
func (s *ForwarderService) closeMQTT() {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.Disconnect(250)
		log.Info().Msg("MQTT client disconnected")
	}
	s.mqttClient = nil
}
