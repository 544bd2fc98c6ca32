package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"go.bug.st/serial"

	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/store"
)

func main() {
	log.SetFlags(log.Lshortfile)

	cfgPath := flag.String("config", "zprobe.yaml", "Path of the YAML config file.")
	port := flag.String("port", "/dev/ttyUSB0", "Port path (or name if using SPJS).")
	baud := flag.Int("baud", 115200, "Serial baud rate.")
	spjsURL := flag.String("spjs", "", "Websocket URL of an SPJS server to use instead of a local port, e.g. ws://cnc-bridge:8989/ws.")
	controllerName := flag.String("controller", "grbl", "Name of the controller to use (grbl or sim).")
	addr := flag.String("addr", ":9091", "Address to bind the zprobe server to.")
	dbPath := flag.String("db", "zprobe.db", "Path of the result history database.")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit.")
	debug := flag.Bool("debug", false, "Log probe debug output.")
	flag.Parse()

	if *listPorts {
		ports, err := serial.GetPortsList()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	reach, err := cfg.Bed.Reach()
	if err != nil {
		log.Fatal(err)
	}

	c, err := newController(controllerOptions{
		kind:       *controllerName,
		port:       *port,
		baud:       *baud,
		spjsURL:    *spjsURL,
		servoScale: cfg.ServoScale,
	})
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal("open db: ", err)
	}
	defer db.Close()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	events := newEventServer()
	defer events.Shutdown()

	deps := c.deps
	deps.Reach = reach
	deps.Notifier = sseNotifier{srv: events}
	deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	p, err := probe.New(cfg.Probe, deps)
	if err != nil {
		log.Fatal(err)
	}
	err = p.Init(context.Background())
	if err != nil {
		log.Println("ERROR: init probe:", err)
	}

	api := newAPI(p, c, db, events)

	log.Println("Listening on", *addr)
	err = http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}
