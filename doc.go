// Package relay builds HTTP API clients from declarative descriptors.
//
// A Schema maps resources to methods, each declaring a URL template, an HTTP
// method and an optional transform pipeline:
//
//	client, err := relay.Compile(relay.Schema{
//	    "comments": {
//	        "list": {Path: "/comments"},
//	        "get":  {Path: "/comments/:id", Transforms: []relay.Transform{relay.Field("data")}},
//	        "add":  {Path: "/comments", HTTPMethod: "POST"},
//	    },
//	}, relay.Config{APIURL: "https://api.example.com"})
//
// Every method is reachable as client.Method("comments", "get") and under its
// flattened name, client.Lookup("comments_get"). A method can be called in
// two modes:
//
//   - Immediate: Call / CallWithCallback / Do send right away and return a
//     *Call whose Wait yields the transformed body.
//   - Deferred: Deferred returns a *Handle; the caller edits the request
//     (headers, query, timeout) and finalizes it with Send.
//
// Params fill ":key" placeholders first (":key?" is optional); leftovers
// become query parameters for GET, HEAD, DELETE and OPTIONS and a JSON body
// for POST, PUT and PATCH. Empty query values are dropped; numbers are kept.
//
// All methods of a client share a lifecycle tracker. Observers registered
// with Subscribe see before-dispatch, dispatched, succeeded, failed,
// cancelled and drained events; drained fires whenever the in-flight count
// returns to zero. MetricsCollector and LoggingObserver are observers.
//
// Requests go through a resty-backed Transport wrapped by optional rate
// limiting, circuit breaking and user middleware. Non-2xx responses surface
// as *TransportError; failing transforms as *TransformError.
package relay
