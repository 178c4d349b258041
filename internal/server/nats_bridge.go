package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/session"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// NATSBridge connects the session manager to the message bus. It publishes
// status events on motion.device.<mac>.status and accepts commands on
// motion.device.<mac>.command. MAC addresses appear in subjects as twelve
// lowercase hex digits.
type NATSBridge struct {
	nc      *nats.Conn
	manager *session.Manager
	subs    []*nats.Subscription
}

// NewNATSBridge creates a NATS bridge
func NewNATSBridge(nc *nats.Conn, manager *session.Manager) *NATSBridge {
	return &NATSBridge{
		nc:      nc,
		manager: manager,
		subs:    make([]*nats.Subscription, 0),
	}
}

// Start runs the bridge until the context is cancelled
func (b *NATSBridge) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe("motion.device.*.command", b.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe device command: %w", err)
	}
	b.subs = append(b.subs, sub)

	events, cancel := b.manager.Subscribe()
	defer cancel()

	log.Info().
		Int("subscriptions", len(b.subs)).
		Msg("NATS bridge started")

	for {
		select {
		case <-ctx.Done():
			for _, s := range b.subs {
				s.Unsubscribe()
			}
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			b.publishStatus(event)
		}
	}
}

// publishStatus publishes one status event to the bus
func (b *NATSBridge) publishStatus(event models.StatusEvent) {
	payload := map[string]interface{}{
		"mac":              event.MAC.String(),
		"connection_state": event.State,
		"status":           event.Snapshot,
		"time":             time.Now().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal status event")
		return
	}

	subject := fmt.Sprintf("motion.device.%s.status", subjectMAC(event.MAC))
	if err := b.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish status event")
	}
}

// handleCommand dispatches a bus command to the device named in the subject
func (b *NATSBridge) handleCommand(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received device command")

	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 4 {
		log.Error().Str("subject", msg.Subject).Msg("Unexpected command subject")
		return
	}

	mac, err := parseSubjectMAC(parts[2])
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Invalid MAC in command subject")
		return
	}

	var cmd struct {
		Type            string `json:"type"`
		DurationSeconds int    `json:"duration_seconds"`
		Position        int    `json:"position"`
		Tilt            int    `json:"tilt"`
		Speed           int    `json:"speed"`
	}
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal device command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := b.manager.Dispatch(ctx, mac, models.Command{
		Type:     models.CommandType(cmd.Type),
		Duration: time.Duration(cmd.DurationSeconds) * time.Second,
		Position: cmd.Position,
		Tilt:     cmd.Tilt,
		Speed:    motion.SpeedLevel(cmd.Speed),
	})

	if msg.Reply != "" {
		reply := map[string]interface{}{
			"mac":     mac.String(),
			"command": cmd.Type,
		}
		if err != nil {
			reply["error"] = err.Error()
		} else {
			reply["status"] = snapshot
		}
		data, _ := json.Marshal(reply)
		msg.Respond(data)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("device", mac.String()).
			Str("command", cmd.Type).
			Msg("Bus command failed")
		return
	}

	log.Info().
		Str("device", mac.String()).
		Str("command", cmd.Type).
		Msg("Bus command processed")
}

// subjectMAC renders a MAC as a subject token
func subjectMAC(mac motion.MACAddress) string {
	return strings.ToLower(strings.ReplaceAll(mac.String(), ":", ""))
}

// parseSubjectMAC parses a subject token back into a MAC
func parseSubjectMAC(token string) (motion.MACAddress, error) {
	if len(token) != 12 {
		return motion.MACAddress{}, fmt.Errorf("invalid mac token %q", token)
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(token[i : i+2])
	}
	return motion.ParseMAC(b.String())
}
