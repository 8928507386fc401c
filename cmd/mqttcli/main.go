// Command mqttcli drives one MQTT session from a TOML config file: connect,
// subscribe to a set of topic filters, optionally publish a handful of
// messages, and print incoming publications and disconnect events until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cypresssemiconductorco/mqtt"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mqttcli",
		Short: "Drive one MQTT v3.1.1 session from a TOML config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "mqttcli.toml", "path to the session config file")
	return root
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	lib, err := mqtt.Init()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer lib.Deinit()

	var creds *mqtt.Credentials
	if cfg.Client.Username != "" {
		creds = &mqtt.Credentials{Username: cfg.Client.Username, Password: cfg.Client.Password}
	}

	client, err := lib.Create(make([]byte, 8*1024), creds, mqtt.Broker{
		Host:      cfg.Broker.Host,
		Port:      cfg.Broker.Port,
		WebSocket: cfg.Broker.WebSocket,
	}, onEvent, nil)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer client.Delete()

	pterm.Info.Printfln("connecting to %s:%d", cfg.Broker.Host, cfg.Broker.Port)
	if err := client.Connect(ctx, mqtt.ConnectInfo{
		ClientID:     cfg.Client.ID,
		KeepAlive:    cfg.keepAlive(),
		CleanSession: cfg.Client.CleanSession,
	}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect()
	pterm.Success.Println("connected")

	if len(cfg.Subscribe) > 0 {
		entries := make([]mqtt.SubscribeEntry, len(cfg.Subscribe))
		for i, s := range cfg.Subscribe {
			entries[i] = mqtt.SubscribeEntry{Topic: s.Topic, QoS: mqtt.QoS(s.QoS)}
		}
		if err := client.Subscribe(entries); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		rows := [][]string{{"Topic", "Granted QoS"}}
		for _, e := range entries {
			rows = append(rows, []string{e.Topic, e.AllocatedQoS.String()})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	for _, p := range cfg.Publish {
		pterm.Info.Printfln("publishing to %s (qos=%d)", p.Topic, p.QoS)
		if err := client.Publish(mqtt.PublishInfo{
			Topic:   p.Topic,
			Payload: []byte(p.Payload),
			QoS:     mqtt.QoS(p.QoS),
			Retain:  p.Retain,
		}); err != nil {
			return fmt.Errorf("publish %s: %w", p.Topic, err)
		}
	}

	pterm.Info.Println("press Ctrl+C to disconnect")
	waitForSignal()

	stats := client.Stats()
	pterm.Info.Printfln("packets sent=%d received=%d bytes sent=%d received=%d reconnects=%d",
		stats.PacketsSent, stats.PacketsReceived, stats.BytesSent, stats.BytesReceived, stats.ReconnectCount)
	return nil
}

func onEvent(c *mqtt.Client, ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.EventPublishReceive:
		pterm.Println(pterm.Cyan(ev.Message.Topic), "->", string(ev.Message.Payload))
	case mqtt.EventDisconnect:
		pterm.Warning.Printfln("disconnected: %s", ev.Reason)
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
