package rpcapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, chat logging is off.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the protocol layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

func logChat(r *http.Request, status, sessionID string, dur time.Duration, err error) {
	if zlog == nil {
		return
	}
	z := zlog.Info().Str("status", status).Str("session_id", sessionID).Dur("dur", dur)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("chat stream end")
}
