// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
)

// apiError is the NMOS error body shape: {code, error, debug}.
type apiError struct {
	Code  int     `json:"code"`
	Error string  `json:"error"`
	Debug *string `json:"debug"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an NMOS error envelope.
func writeError(w http.ResponseWriter, code int, msg string, debug string) {
	var dbg *string
	if debug != "" {
		dbg = &debug
	}
	writeJSON(w, code, apiError{Code: code, Error: msg, Debug: dbg})
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg, "")
}

func writeNotImplemented(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotImplemented, msg, "")
}
