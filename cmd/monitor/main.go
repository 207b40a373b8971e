// parol6-monitor tails one topic of the commander's status feed and
// prints each snapshot as a JSON line.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "Status feed address")
	topic := flag.String("topic", "status", "Topic to subscribe to (status, joints, pose, io, gripper, planning)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/" + *topic}
	for {
		if err := tail(ctx, u); err != nil {
			fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
			// Reconnect after a short pause.
		}
	}
}

// tail streams messages from one connection until it drops or ctx ends.
func tail(ctx context.Context, u url.URL) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "subscribed to %s\n", u.String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Println(string(msg))
	}
}
