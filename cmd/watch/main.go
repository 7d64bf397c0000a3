package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/observerproto"
)

func main() {
	var (
		url    = flag.String("url", "ws://127.0.0.1:8090/admin/v1/observer/ws", "observer ws url")
		events = flag.String("events", "TRANSITION,FAILED", "comma separated lifecycle event types")
		cycles = flag.Bool("cycles", true, "print one line per update cycle")
		radius = flag.Int("radius", 0, "only chunks within this XZ distance of the center (0 = all)")
		every  = flag.Uint64("every", 20, "print every n-th cycle")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg(*events, *cycles, *radius)); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	var failed int
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("disconnected: %v (failures seen=%d)", err, failed)
			return
		}
		base, err := observerproto.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeCycle:
			var c observerproto.CycleMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			if *every <= 1 || c.Cycle%*every == 0 {
				logger.Printf("cycle=%d center=%v loaded=%d +%d -%d completions=%d dispatched=%d deferred=%d",
					c.Cycle, c.Center, c.Loaded, c.Admitted, c.Evicted, c.Completions, c.Dispatched, c.Deferred)
			}

		case observerproto.TypeLifecycle:
			var e observerproto.LifecycleMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			if e.Event == "FAILED" {
				failed++
			}
			line := e.Event + " " + e.From + "->" + e.To
			if e.Reason != "" {
				line += " (" + e.Reason + ")"
			}
			logger.Printf("%v %s", e.Coord, line)
		}
	}
}

func subscribeMsg(events string, cycles bool, radius int) observerproto.SubscribeMsg {
	var list []string
	for _, e := range strings.Split(events, ",") {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			list = append(list, e)
		}
	}
	return observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Events:          list,
		Cycles:          cycles,
		ChunkRadius:     radius,
	}
}
