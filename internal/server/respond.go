package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its HTTP status and a stable error envelope.
// Replay is deliberately indistinguishable from any other 401 on the wire.
func writeError(w http.ResponseWriter, err error) {
	code := "E_INTERNAL"
	message := "internal error"
	var ae *errclass.AnchorError
	if errors.As(err, &ae) {
		code = ae.Code
		message = ae.Message
		if errors.Is(err, errclass.ErrReplay) {
			code = errclass.ErrUnauthenticated.Code
			message = "authentication required"
		}
	}
	writeJSON(w, errclass.HTTPStatus(err), errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errclass.ErrInvalid.WithMessagef("parse request body: %v", err)
	}
	return nil
}
