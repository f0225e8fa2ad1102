// coreconn-echo is a minimal stand-in "Core" server for exercising
// coreconn.Connection end to end. It is not itself part of the
// specification — it's a test fixture made runnable, answering every
// request with an echo of its args and periodically emitting a heartbeat
// event.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aegiscore/coreconn/internal/logging"
	"github.com/coder/websocket"
)

type requestFrame struct {
	MessageID string          `json:"messageId"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	SendTime  int64           `json:"sendTime"`
}

func main() {
	addr := ":8721"
	if v := os.Getenv("CORECONN_ECHO_ADDR"); v != "" {
		addr = v
	}

	log := logging.New(os.Stderr, -4)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warn("accept failed", "err", err)
			return
		}
		log.Info("client connected", "remote", r.RemoteAddr)
		serve(r.Context(), conn, log)
	})

	log.Info("coreconn-echo listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, conn *websocket.Conn, log *slog.Logger) {
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req requestFrame
			if err := json.Unmarshal(data, &req); err != nil {
				log.Warn("malformed request", "err", err)
				continue
			}
			resp, _ := json.Marshal(map[string]interface{}{
				"responseId": req.MessageID,
				"data":       map[string]interface{}{"echo": req.Command, "args": req.Args},
			})
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			evt, _ := json.Marshal(map[string]interface{}{
				"eventType": "heartbeat",
				"at":        time.Now().Unix(),
			})
			if err := conn.Write(ctx, websocket.MessageText, evt); err != nil {
				return
			}
		}
	}
}
