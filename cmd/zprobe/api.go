package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/store"
)

type api struct {
	http.Handler
	p   *probe.Probe
	c   *controller
	db  *store.DB
	sse *sse.Server
}

// sseNotifier forwards probe status and alerts to event stream clients.
type sseNotifier struct {
	srv *sse.Server
}

func (n sseNotifier) Status(msg string) {
	n.srv.SendMessage("/events/status", sse.SimpleMessage(msg))
}
func (n sseNotifier) Alert(msg string) {
	log.Println("ALERT:", msg)
	n.srv.SendMessage("/events/alert", sse.SimpleMessage(msg))
}

func newEventServer() *sse.Server {
	return sse.NewServer(&sse.Options{
		Logger: log.New(io.Discard, "", 0),
	})
}

func newAPI(p *probe.Probe, c *controller, db *store.DB, events *sse.Server) *api {
	r := mux.NewRouter()
	a := &api{
		Handler: r,
		p:       p,
		c:       c,
		db:      db,
		sse:     events,
	}

	r.HandleFunc("/api/probe", a.probe).Methods("POST")
	r.HandleFunc("/api/accuracy", a.accuracy).Methods("POST")
	r.HandleFunc("/api/deploy", a.deploy(true)).Methods("POST")
	r.HandleFunc("/api/stow", a.deploy(false)).Methods("POST")
	r.HandleFunc("/api/home", a.home).Methods("POST")
	r.HandleFunc("/api/resume", a.resume).Methods("POST")
	r.HandleFunc("/api/run", a.run).Methods("POST")
	r.HandleFunc("/api/offset", a.getOffset).Methods("GET")
	r.HandleFunc("/api/offset", a.putOffset).Methods("PUT")
	r.HandleFunc("/api/history", a.history).Methods("GET")
	r.PathPrefix("/events/").Handler(a.sse)

	if c.state != nil {
		go func() {
			for state := range c.state {
				a.sendJSON("/events/state", state)
			}
		}()
	}
	if c.hold != nil {
		go func() {
			for msg := range c.hold {
				a.sse.SendMessage("/events/hold", sse.SimpleMessage(msg))
			}
		}()
	}

	return a
}

func (a *api) sendJSON(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, probe.ErrUnreachable):
		return http.StatusBadRequest
	case errors.Is(err, probe.ErrNotHomed):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// formParser collects the first parse error of a request.
type formParser struct {
	req *http.Request
	err error
}

func (f *formParser) float(name string, def float64) float64 {
	s := f.req.FormValue(name)
	if s == "" || f.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.err = errors.New("invalid " + name + ": " + err.Error())
	}
	return v
}
func (f *formParser) int(name string, def int) int {
	s := f.req.FormValue(name)
	if s == "" || f.err != nil {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f.err = errors.New("invalid " + name + ": " + err.Error())
	}
	return v
}
func (f *formParser) bool(name string) bool {
	return f.req.FormValue(name) == "1"
}

// result is a store.Result that encodes a failed measurement without Z.
type result struct {
	ID   string
	Time time.Time
	X, Y float64
	Z    *float64 `json:",omitempty"`
	Err  string   `json:",omitempty"`
}

func newResult(r store.Result) result {
	res := result{ID: r.ID, Time: r.Time, X: r.X, Y: r.Y, Err: r.Err}
	if r.OK() {
		z := r.Z
		res.Z = &z
	}
	return res
}

func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	f := &formParser{req: req}
	r := probe.Request{
		X:             f.float("x", math.NaN()),
		Y:             f.float("y", math.NaN()),
		Verbose:       f.int("verbose", 0),
		ProbeRelative: f.bool("probeRelative"),
		SanityCheck:   f.bool("sanityCheck"),
		Raise:         probe.Raise,
	}
	if s := req.FormValue("raise"); s != "" && f.err == nil {
		r.Raise, f.err = probe.ParseRaisePolicy(s)
	}
	if f.err != nil {
		http.Error(w, f.err.Error(), http.StatusBadRequest)
		return
	}

	z, err := a.p.ProbeAt(req.Context(), r)
	if errors.Is(err, probe.ErrUnreachable) {
		// nothing moved, nothing to record
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := store.Result{X: r.X, Y: r.Y, Z: z}
	if err != nil {
		rec.Z = math.NaN()
		rec.Err = err.Error()
	}
	rec, dbErr := a.db.Record(context.WithoutCancel(req.Context()), rec)
	if dbErr != nil {
		log.Printf("ERROR: record result: %+v", dbErr)
	}
	a.sendJSON("/events/probe", newResult(rec))

	if err != nil {
		log.Printf("ERROR: probe x=%g y=%g: %+v", r.X, r.Y, err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, newResult(rec))
}

func (a *api) accuracy(w http.ResponseWriter, req *http.Request) {
	f := &formParser{req: req}
	x := f.float("x", math.NaN())
	y := f.float("y", math.NaN())
	n := f.int("n", 10)
	probeRelative := f.bool("probeRelative")
	if f.err != nil {
		http.Error(w, f.err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := a.p.Accuracy(req.Context(), x, y, n, probeRelative)
	if err != nil {
		log.Printf("ERROR: accuracy x=%g y=%g n=%d: %+v", x, y, n, err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, rep)
}

func (a *api) deploy(deploy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := a.p.SetDeployed(req.Context(), deploy)
		if err != nil {
			log.Printf("ERROR: set deployed=%t: %+v", deploy, err)
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	err := a.c.home(req.Context())
	if err != nil {
		log.Printf("ERROR: home: %+v", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) resume(w http.ResponseWriter, req *http.Request) {
	err := a.c.resume()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	if a.c.run == nil {
		http.Error(w, "controller does not run G-code", http.StatusNotImplemented)
		return
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = a.c.run(req.Context(), string(data))
	if err != nil {
		log.Printf("ERROR: run: %+v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getOffset(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, a.p.Offset())
}

func (a *api) putOffset(w http.ResponseWriter, req *http.Request) {
	var off coord.Point
	err := json.NewDecoder(req.Body).Decode(&off)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = a.p.SetOffset(off)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, a.p.Offset())
}

func (a *api) history(w http.ResponseWriter, req *http.Request) {
	f := &formParser{req: req}
	limit := f.int("limit", 50)
	if f.err != nil || limit < 1 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	recs, err := a.db.Recent(req.Context(), limit)
	if err != nil {
		log.Printf("ERROR: history: %+v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res := make([]result, 0, len(recs))
	for _, r := range recs {
		res = append(res, newResult(r))
	}
	writeJSON(w, res)
}
