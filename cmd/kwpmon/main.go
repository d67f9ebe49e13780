package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/golang/glog"

	fx "github.com/robotalks/kwp.go/pkg/framework"
	"github.com/robotalks/kwp.go/pkg/trace"
	"github.com/robotalks/kwp.go/pkg/trace/comm/mqtt"
	"github.com/robotalks/kwp.go/pkg/trace/comm/stream"
	"github.com/robotalks/kwp.go/pkg/trace/comm/websocket"
)

//go-build: CGO_ENABLED=0

var (
	mqttURL    string
	listenAddr string
	wsAddr     string
)

func init() {
	if val := os.Getenv("KWP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, e.g. mqtt://localhost:1883/kwp/")
	flag.StringVar(&listenAddr, "listen", listenAddr, "TCP address accepting trace streams.")
	flag.StringVar(&wsAddr, "ws", wsAddr, "HTTP address accepting trace websockets.")
}

func printEvent(e *trace.Event) {
	log.Println(e.Format())
}

func serveTCP(ctx context.Context) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	glog.Infof("accepting traces on tcp %s", ln.Addr())
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			name := conn.RemoteAddr().String()
			go func() {
				if err := trace.NewMonitor(name, stream.New(conn), printEvent).Run(ctx); err != nil {
					glog.Warningf("%s: %v", name, err)
				}
			}()
		}
	})
}

func serveWebsocket(ctx context.Context) error {
	srv := &http.Server{
		Addr: wsAddr,
		Handler: websocket.Handler(func(rw *websocket.ReadWriter) {
			if err := trace.NewMonitor("ws", rw, printEvent).Run(ctx); err != nil {
				glog.Warningf("ws: %v", err)
			}
		}),
	}
	glog.Infof("accepting traces on ws %s", wsAddr)
	return fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	runner := fx.NewRunner().HandleSignals()
	if mqttURL != "" {
		q, err := mqtt.NewQueueFromURL(mqttURL)
		if err != nil {
			log.Fatalln(err)
		}
		if err = q.Connect(); err != nil {
			log.Fatalln(err)
		}
		rw := mqtt.NewPacketReadWriter(q).ForMonitor()
		runner.Go(fx.NamedRun("mqtt", rw), trace.NewMonitor("mqtt-monitor", rw, printEvent))
	}
	if listenAddr != "" {
		runner.Go(fx.NamedRun("tcp", fx.RunFunc(serveTCP)))
	}
	if wsAddr != "" {
		runner.Go(fx.NamedRun("ws", fx.RunFunc(serveWebsocket)))
	}
	if len(runner.Runners) == 0 {
		log.Fatalln("one of -mqtt, -listen or -ws is required")
	}
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
