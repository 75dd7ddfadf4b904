package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/collector"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher mirrors each refreshed snapshot to an MQTT broker: a few
// individual value topics plus a retained JSON status topic.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	log         *zap.Logger
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Logger      *zap.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, log: log}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info("mqtt connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
		log:         log,
	}, nil
}

func (p *Publisher) PublishSnapshot(snap collector.Snapshot) error {
	if !p.enabled {
		return nil
	}

	power := 0
	if n := len(snap.Records); n > 0 {
		power = snap.Records[n-1].PowerW
	}

	values := map[string]interface{}{
		"power":          power,
		"energy_today":   snap.EnergyTodayKWh,
		"peak_power":     snap.PeakPowerW,
		"status":         snap.StatusText,
		"data_quality":   snap.DQText,
		"connected":      snap.InverterConnected,
		"uptime_minutes": snap.UptimeMinutes,
	}
	if snap.EnergyTotalKWh != nil {
		values["energy_total"] = *snap.EnergyTotalKWh
	}
	if snap.ACVoltage != nil {
		values["ac_voltage"] = *snap.ACVoltage
	}
	if snap.GridFreqHz != nil {
		values["grid_frequency"] = *snap.GridFreqHz
	}
	if snap.InverterTempC != nil {
		values["temperature"] = *snap.InverterTempC
	}

	for name, value := range values {
		topic := fmt.Sprintf("%s/%s", p.topicPrefix, name)
		token := p.client.Publish(topic, 0, false, fmt.Sprintf("%v", value))
		token.Wait()
		if token.Error() != nil {
			p.log.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/status", p.topicPrefix)
	token := p.client.Publish(statusTopic, 0, true, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
