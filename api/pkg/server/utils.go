package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewLoggingResponseWriter(w http.ResponseWriter) *LoggingResponseWriter {
	return &LoggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the caller take over the connection.
// Implement this method to support websockets.
func (lrw *LoggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("the ResponseWriter does not support Hijack")
	}
	return hijacker.Hijack()
}

func ErrorLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := NewLoggingResponseWriter(w)

		next.ServeHTTP(lrw, r)

		if lrw.statusCode >= 400 {
			log.Error().Msgf("Method: %s, Path: %s, Status: %d", r.Method, r.URL.Path, lrw.statusCode)
		}
	})
}

// httpError translates a core error kind into the status code the command
// surface promises for it.
func httpError(err error) *system.HTTPError {
	switch types.KindOf(err) {
	case types.ErrorKindInvalidInput, types.ErrorKindInvalidBakeSpec:
		return system.NewHTTPError400(err.Error())
	case types.ErrorKindNotFound:
		return system.NewHTTPError404(err.Error())
	case types.ErrorKindInvalidState, types.ErrorKindRackConflict, types.ErrorKindCannotFulfil:
		return system.NewHTTPError409(err.Error())
	case types.ErrorKindNoSlotBeforeClose, types.ErrorKindOvenMismatch:
		return system.NewHTTPError422(err.Error())
	default:
		return system.NewHTTPError500(err.Error())
	}
}

// simulationFromRequest resolves the {id} path variable into the live engine.
func (apiServer *BakeOpsAPIServer) simulationFromRequest(r *http.Request) (*simulation.Engine, *system.HTTPError) {
	id := mux.Vars(r)["id"]
	engine, err := apiServer.manager.GetEngine(id)
	if err != nil {
		return nil, httpError(err)
	}
	return engine, nil
}
