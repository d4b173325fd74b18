package topic

import (
	"errors"

	"solar_dashboard/internal/logger"
)

// ErrUnknownPlug is returned by handlers for a plug name that is not configured.
var ErrUnknownPlug = errors.New("unknown plug")

// Handler receives routed messages. Errors are logged by the Router and never
// reach the transport.
type Handler interface {
	Controller(index int, payload []byte) error
	PlugTelemetry(plug string, kind Kind, payload []byte) error
	PlugQuery(plug string, kind Kind, payload []byte) error
	PlugCommand(plug string, kind Kind, payload []byte) error
	Misc(name string, payload []byte) error
}

// Router parses inbound topics and forwards them to a Handler.
type Router struct {
	h   Handler
	log *logger.Logger
}

func NewRouter(h Handler, log *logger.Logger) *Router {
	return &Router{h: h, log: log}
}

// Route handles one inbound message.
func (r *Router) Route(raw string, payload []byte) Route {
	rt := Parse(raw)

	var err error
	switch rt.Category {
	case CategoryController:
		err = r.h.Controller(rt.Index, payload)
	case CategoryPlugTelemetry:
		err = r.h.PlugTelemetry(rt.Subject, rt.Kind, payload)
	case CategoryPlugQuery:
		err = r.h.PlugQuery(rt.Subject, rt.Kind, payload)
	case CategoryPlugCommand:
		err = r.h.PlugCommand(rt.Subject, rt.Kind, payload)
	case CategoryMisc:
		err = r.h.Misc(rt.Subject, payload)
	default:
		r.log.Debugw("unroutable_topic", "topic", raw, "payload", string(payload))
		return rt
	}

	if err != nil {
		if errors.Is(err, ErrUnknownPlug) {
			r.log.Debugw("unknown_plug", "topic", raw, "category", rt.Category.String())
			return rt
		}
		r.log.Infow("message_not_applied", "topic", raw, "category", rt.Category.String(), "payload", string(payload), "err", err)
	}
	return rt
}
