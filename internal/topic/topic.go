// Package topic turns raw MQTT topic strings into a closed set of routes and
// dispatches them to a Handler.
package topic

import (
	"strings"
)

// Category is the structural class of a topic.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryController
	CategoryPlugTelemetry
	CategoryPlugQuery
	CategoryPlugCommand
	CategoryMisc
)

func (c Category) String() string {
	switch c {
	case CategoryController:
		return "controller"
	case CategoryPlugTelemetry:
		return "plug_telemetry"
	case CategoryPlugQuery:
		return "plug_query"
	case CategoryPlugCommand:
		return "plug_command"
	case CategoryMisc:
		return "misc"
	default:
		return "unknown"
	}
}

// Kind is the last segment of a plug topic.
type Kind int

const (
	KindNone Kind = iota
	KindState
	KindSensor
	KindPower
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindSensor:
		return "sensor"
	case KindPower:
		return "power"
	case KindOther:
		return "other"
	default:
		return "none"
	}
}

// Topic prefixes and markers as published by the devices.
const (
	ControllerPrefix = "CC"
	TelePrefix       = "tele"
	StatPrefix       = "stat"
	CmndPrefix       = "cmnd"

	stateMarker     = "STATE"
	sensorMarker    = "SENSOR"
	queryMarker     = "POWER"
	commandMarker   = "Power"
	TogglePayload   = "TOGGLE"
	WildcardTopic   = "#"
	QueryPayload    = ""
	controllerDigit = len(ControllerPrefix)
)

// Route is a parsed topic.
type Route struct {
	Category Category
	// Subject is the plug name, the controller digit or the misc topic.
	Subject string
	Kind    Kind
	// Index is the controller number for CategoryController.
	Index int
	Raw   string
}

// Parse classifies a topic. Categories are checked in priority order:
// controller, plug telemetry, plug query, plug command, misc.
func Parse(raw string) Route {
	r := Route{Raw: raw}

	if strings.HasPrefix(raw, ControllerPrefix) {
		if len(raw) == controllerDigit+1 && raw[controllerDigit] >= '0' && raw[controllerDigit] <= '9' {
			r.Category = CategoryController
			r.Subject = raw[controllerDigit:]
			r.Index = int(raw[controllerDigit] - '0')
			return r
		}
		// CC with no single digit index
		r.Category = CategoryUnknown
		return r
	}

	parts := strings.Split(raw, "/")
	switch parts[0] {
	case TelePrefix:
		return plugRoute(r, parts, CategoryPlugTelemetry, func(k string) Kind {
			switch k {
			case stateMarker:
				return KindState
			case sensorMarker:
				return KindSensor
			}
			return KindOther
		})
	case StatPrefix:
		return plugRoute(r, parts, CategoryPlugQuery, func(k string) Kind {
			if k == queryMarker {
				return KindPower
			}
			return KindOther
		})
	case CmndPrefix:
		return plugRoute(r, parts, CategoryPlugCommand, func(k string) Kind {
			if k == commandMarker {
				return KindPower
			}
			return KindOther
		})
	}

	if raw == "" {
		return r
	}
	r.Category = CategoryMisc
	r.Subject = raw
	return r
}

func plugRoute(r Route, parts []string, c Category, kind func(string) Kind) Route {
	if len(parts) != 3 || parts[1] == "" {
		r.Category = CategoryUnknown
		return r
	}
	r.Category = c
	r.Subject = parts[1]
	r.Kind = kind(parts[2])
	return r
}

// CommandTopic is the outbound command topic for a plug.
func CommandTopic(plug string) string {
	return CmndPrefix + "/" + plug + "/" + commandMarker
}
