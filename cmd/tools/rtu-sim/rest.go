package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/womat/mbserver"

	"github.com/fisaks/rfedge/internal/logging"
)

type RelayState struct {
	Coil   int    `json:"coil"`
	Device string `json:"device,omitempty"`
	On     bool   `json:"on"`
}

func StartRestAPI(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /bus/{busId}/{unitId}", getBoardHandler)
	mux.HandleFunc("GET /bus/{busId}/{unitId}/relay/{coil}", getRelayHandler)
	mux.HandleFunc("PUT /bus/{busId}/{unitId}/relay/{coil}", setRelayHandler)
	mux.HandleFunc("POST /bus/{busId}/{unitId}/relay/{coil}/toggle", toggleRelayHandler)

	logging.Info("RTU simulator REST API listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

/* ------------------------ helpers: json & errors ------------------------ */

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

/* ----------------------- board lookup ------------------- */

func getBoard(w http.ResponseWriter, r *http.Request) (*mbserver.Server, *SimBoard, bool) {
	busId := r.PathValue("busId")
	unit, err := strconv.ParseUint(r.PathValue("unitId"), 10, 8)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid unit id")
		return nil, nil, false
	}

	simulatorsMu.RLock()
	defer simulatorsMu.RUnlock()
	sim, ok := simulators[busId]
	if !ok {
		fail(w, http.StatusNotFound, "bus not found")
		return nil, nil, false
	}
	board, ok := boards[busId][uint8(unit)]
	if !ok {
		fail(w, http.StatusNotFound, "board not found")
		return nil, nil, false
	}
	return sim, board, true
}

func getCoil(w http.ResponseWriter, r *http.Request) (*mbserver.Server, *SimBoard, int, bool) {
	sim, board, ok := getBoard(w, r)
	if !ok {
		return nil, nil, 0, false
	}
	coil, err := strconv.Atoi(r.PathValue("coil"))
	if err != nil || coil < 0 || coil >= board.Coils {
		fail(w, http.StatusBadRequest, "coil out of range")
		return nil, nil, 0, false
	}
	return sim, board, coil, true
}

func relayState(sim *mbserver.Server, board *SimBoard, coil int) RelayState {
	return RelayState{
		Coil:   coil,
		Device: board.Relays[uint16(coil)],
		On:     sim.Devices[board.UnitID].Coils[coil] != 0,
	}
}

/* ------------------------------ handlers -------------------------------- */

func getBoardHandler(w http.ResponseWriter, r *http.Request) {
	sim, board, ok := getBoard(w, r)
	if !ok {
		return
	}
	out := make([]RelayState, 0, board.Coils)
	for i := 0; i < board.Coils; i++ {
		out = append(out, relayState(sim, board, i))
	}
	writeJSON(w, http.StatusOK, out)
}

func getRelayHandler(w http.ResponseWriter, r *http.Request) {
	sim, board, coil, ok := getCoil(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, relayState(sim, board, coil))
}

func setRelayHandler(w http.ResponseWriter, r *http.Request) {
	sim, board, coil, ok := getCoil(w, r)
	if !ok {
		return
	}
	var payload struct {
		On bool `json:"on"`
	}
	if err := readJSON(r, &payload); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	var v byte
	if payload.On {
		v = 1
	}
	sim.Devices[board.UnitID].Coils[coil] = v
	writeJSON(w, http.StatusOK, relayState(sim, board, coil))
}

func toggleRelayHandler(w http.ResponseWriter, r *http.Request) {
	sim, board, coil, ok := getCoil(w, r)
	if !ok {
		return
	}
	sim.Devices[board.UnitID].Coils[coil] ^= 1
	writeJSON(w, http.StatusOK, relayState(sim, board, coil))
}
