// Package mqtt implements the session-and-QoS state machine of an MQTT
// v3.1.1 client suitable for constrained, long-running IoT deployments.
//
// The package owns a client handle, drives a CONNECT handshake (optionally
// over TLS or WebSocket), runs a background receive pump that dispatches
// broker packets, and implements the acknowledgement protocol for PUBLISH
// (QoS 0/1/2), SUBSCRIBE and UNSUBSCRIBE with bounded retry, publish-resend
// on session resume, and asynchronous disconnect notification.
//
// # Design
//
// Every mutable field on a Client is guarded by a single per-client mutex.
// A dedicated receive pump goroutine periodically drives the protocol
// engine's process loop while a session is established; Publish, Subscribe
// and Unsubscribe instead drive the same process loop cooperatively, inline,
// while they wait for their acknowledgement, which is why they briefly
// exclude the pump. This mirrors how constrained MQTT client SDKs (e.g.
// coreMQTT-style embedded stacks) are built, rather than the fully
// asynchronous, channel-per-direction pipeline more commonly seen in
// general-purpose Go MQTT clients.
//
// A process-wide handle registry maps protocol-engine contexts back to
// owning clients, and a process-wide disconnect worker serializes
// transport-originated disconnect notifications so the networking layer's
// own callback thread never re-enters client state directly.
//
// # Quick start
//
//	lib, err := mqtt.Init()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Deinit()
//
//	client, err := lib.Create(make([]byte, 8*1024), nil, mqtt.Broker{Host: "localhost", Port: 1883},
//	    func(c *mqtt.Client, ev mqtt.Event) {
//	        if ev.Kind == mqtt.EventPublishReceive {
//	            fmt.Printf("%s: %s\n", ev.Message.Topic, ev.Message.Payload)
//	        }
//	    }, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Delete()
//
//	if err := client.Connect(context.Background(), mqtt.ConnectInfo{
//	    ClientID:     "c1",
//	    KeepAlive:    60 * time.Second,
//	    CleanSession: true,
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	if err := client.Publish(mqtt.PublishInfo{Topic: "a/b", Payload: []byte("hi"), QoS: mqtt.QoS1}); err != nil {
//	    log.Fatal(err)
//	}
//
// # Scope
//
// MQTT v5.0 properties, broker-side behavior, on-disk session persistence
// across process restarts, and automatic reconnection past the initial
// CONNECT are not implemented here; the client surfaces a DISCONNECT event
// and leaves the decision to reconnect to the caller.
//
// # Logging
//
// The package logs through log/slog. Supply a *slog.Logger via WithLogger;
// the default is slog.Default().
package mqtt
