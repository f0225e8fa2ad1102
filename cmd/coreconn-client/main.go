// coreconn-client is a demo CLI driving a coreconn.Connection against a
// WebSocket-speaking Core, such as coreconn-echo.
//
// Commands:
//
//	coreconn-client ping    Connect, send one "ping" RPC, print the reply
//	coreconn-client watch   Connect and print events until interrupted
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegiscore/coreconn/internal/coreconn"
	"github.com/aegiscore/coreconn/internal/logging"
	"github.com/aegiscore/coreconn/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ping":
		cmdPing()
	case "watch":
		cmdWatch()
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Usage: coreconn-client <command>

Commands:
  ping    Connect, send one "ping" RPC, print the reply
  watch   Connect and print events until interrupted

Environment:
  CORECONN_URL   WebSocket URL of the Core to dial (default ws://127.0.0.1:8721)`)
}

func coreURL() string {
	if v := os.Getenv("CORECONN_URL"); v != "" {
		return v
	}
	return "ws://127.0.0.1:8721"
}

func cmdPing() {
	log := logging.New(os.Stderr, -4)
	wst := transport.NewWebSocketTransport(coreURL())
	conn := coreconn.NewConnection(wst, coreconn.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := conn.SendRequest(ctx, "ping", json.RawMessage(`{}`), 5*time.Second)
	if err != nil {
		log.Error("ping failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(string(data))

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	if err := conn.Disconnect(dctx, nil); err != nil {
		log.Error("disconnect failed", "err", err)
		os.Exit(1)
	}
}

func cmdWatch() {
	log := logging.New(os.Stderr, -4)
	wst := transport.NewWebSocketTransport(coreURL())
	conn := coreconn.NewConnection(wst, coreconn.WithLogger(log))

	conn.OnEvent(func(e coreconn.Event) {
		fmt.Printf("event type=%q listener=%q raw=%s\n", e.EventType, e.ListenerID, e.Raw)
	})
	conn.OnDisconnected(func(err error) {
		if err != nil {
			log.Warn("disconnected", "err", err)
		} else {
			log.Info("disconnected")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		log.Error("connect failed", "err", err)
		os.Exit(1)
	}
	log.Info("watching for events", "url", coreURL())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	conn.Disconnect(dctx, nil)
}
