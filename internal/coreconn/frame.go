package coreconn

import "encoding/json"

// requestFrame is sent outbound for every RPC call, including internal
// handshake requests issued from afterConnectFn/beforeDisconnectFn.
type requestFrame struct {
	MessageID string          `json:"messageId"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	SendTime  int64           `json:"sendTime"`
	CommandID *int            `json:"commandId,omitempty"`
	StartTime *int64          `json:"startTime,omitempty"`
}

// responseFrame is the shape of an inbound response. Data carries either a
// success payload or an error-shaped value; errorShape disambiguates which
// by the IsError discriminator, since Go has no runtime "instanceof Error"
// check the way the source host language does.
type responseFrame struct {
	ResponseID string          `json:"responseId"`
	Data       json.RawMessage `json:"data"`
}

// eventFrame is forwarded opaquely to event subscribers; the controller
// only inspects ListenerID/EventType to classify it as an event at all.
type eventFrame struct {
	ListenerID string          `json:"listenerId,omitempty"`
	EventType  string          `json:"eventType,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// errorShape is the error-as-data encoding used in a response frame's Data
// field. IsError must be true for Data to be interpreted as an error rather
// than a payload — the discriminator resolves the spec's open question of
// how a byte-oriented transport distinguishes "successful payload that
// happens to look like {name, message}" from an actual error.
type errorShape struct {
	IsError         bool   `json:"isError"`
	Name            string `json:"name"`
	Message         string `json:"message"`
	IsDisconnecting bool   `json:"isDisconnecting,omitempty"`
}

// classifyFrame reports which dispatch branch an inbound frame belongs to,
// mirroring onMessage's tag inspection: responseId present routes to
// onResponse; listenerId/eventType present routes to onEvent; anything else
// is dropped.
func classifyFrame(raw json.RawMessage) (resp *responseFrame, evt *eventFrame, ok bool) {
	var probe struct {
		ResponseID string `json:"responseId"`
		ListenerID string `json:"listenerId"`
		EventType  string `json:"eventType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil, false
	}
	if probe.ResponseID != "" {
		var r responseFrame
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, nil, false
		}
		return &r, nil, true
	}
	if probe.ListenerID != "" || probe.EventType != "" {
		return nil, &eventFrame{ListenerID: probe.ListenerID, EventType: probe.EventType, Raw: raw}, true
	}
	return nil, nil, false
}

// asErrorShape attempts to interpret data as an errorShape. ok is false when
// data does not carry isError:true, meaning it is an ordinary payload.
func asErrorShape(data json.RawMessage) (shape errorShape, ok bool) {
	if err := json.Unmarshal(data, &shape); err != nil {
		return errorShape{}, false
	}
	return shape, shape.IsError
}

// Event is the opaque payload delivered to event subscribers.
type Event struct {
	ListenerID string
	EventType  string
	Raw        json.RawMessage
}
