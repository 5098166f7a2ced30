package server

import (
	"log"
	"net/http"
)

// Response is the closed set of handler outcomes: Success or BadRequest.
type Response interface {
	isResponse()
}

// Success is a 200 response with an optional JSON body.
type Success struct {
	Body string
}

// BadRequest is a 400 response carrying a human readable message.
type BadRequest struct {
	Message string
}

func (Success) isResponse()    {}
func (BadRequest) isResponse() {}

const (
	msgInvalidPathOrMethod = "Invalid path or method."
)

func missingParameter(name string) BadRequest {
	return BadRequest{Message: "The '" + name + "' parameter is not specified"}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	switch r := resp.(type) {
	case Success:
		if r.Body == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(r.Body)); err != nil {
			log.Printf("[ControlServer] failed to write response: %v", err)
		}
	case BadRequest:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		if _, err := w.Write([]byte(r.Message)); err != nil {
			log.Printf("[ControlServer] failed to write response: %v", err)
		}
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
