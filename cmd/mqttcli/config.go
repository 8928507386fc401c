package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// config is the on-disk shape of a mqttcli run, loaded from a TOML file via
// --config (-c). It mirrors the handful of Tunables/ConnectInfo/Broker fields an
// operator actually needs to flip for a one-off session against a broker.
type config struct {
	Broker struct {
		Host      string `toml:"host"`
		Port      int    `toml:"port"`
		WebSocket bool   `toml:"websocket"`
	} `toml:"broker"`

	Client struct {
		ID           string `toml:"id"`
		Username     string `toml:"username"`
		Password     string `toml:"password"`
		KeepAlive    int    `toml:"keep_alive_seconds"`
		CleanSession bool   `toml:"clean_session"`
	} `toml:"client"`

	Subscribe []struct {
		Topic string `toml:"topic"`
		QoS   int    `toml:"qos"`
	} `toml:"subscribe"`

	Publish []struct {
		Topic   string `toml:"topic"`
		Payload string `toml:"payload"`
		QoS     int    `toml:"qos"`
		Retain  bool   `toml:"retain"`
	} `toml:"publish"`
}

func loadConfig(path string) (*config, error) {
	var cfg config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%s: [broker] host is required", path)
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 1883
	}
	return &cfg, nil
}

func (c *config) keepAlive() time.Duration {
	if c.Client.KeepAlive <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Client.KeepAlive) * time.Second
}
