// Package openhab talks to an openHAB hub: item state over REST and item
// events over the server-sent events stream.
//
// Item states are plain text. A GET on /rest/items/{name}/state returns the
// current state and a PUT with a text/plain body replaces it. Items that do
// not exist answer 404; the Client remembers those names and refuses further
// calls for them with ErrItemNotFound, so a missing item costs one request
// for the lifetime of the process.
//
// The event stream (/rest/events) carries one JSON envelope per frame:
//
//	{"topic":"openhab/items/ac_lounge_power_state/state",
//	 "type":"ItemStateEvent",
//	 "payload":"{\"type\":\"OnOff\",\"value\":\"ON\"}"}
//
// EventStream decodes frames into Event values and hands them to a callback.
// It does not reconnect by itself; callers own the retry policy.
package openhab
