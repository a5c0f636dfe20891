// Package pulsecalc provides calc channels: named, read-only channels whose
// value is a mathematical expression over other channels, recomputed as
// their inputs change.
//
// A calc channel is addressed with a URL:
//
//	calc://sum?a=loc://a&b=loc://b&expr=a+b&update=[a]
//
// The host is the calculation name. Each query parameter other than expr,
// update and name binds a variable to an input address; expr is the
// expression and the optional update list names the variables whose
// changes trigger a recomputation (all of them by default). An address
// carrying only a name attaches to a calculation configured elsewhere.
//
// # Registry
//
// A [Registry] shares one worker per calculation name between all
// listeners attached to it:
//
//	reg, _ := pulsecalc.NewRegistry(pulsecalc.WithLocal("a", 2), pulsecalc.WithLocal("b", 3))
//	defer reg.Close()
//
//	att, err := reg.Connect("calc://sum?a=loc://a&b=loc://b&expr=a+b", pulsecalc.Listener{
//	    OnValue: func(v any) { fmt.Println(v) }, // 5
//	})
//	defer att.Close()
//
//	reg.SetLocal("b", 5) // 7
//
// Inputs are opened through the source registered for their scheme.
// loc:// (in-process variables), http:// and https:// (polled JSON or text
// endpoints) and calc:// (other calculations) are built in; [WithSource]
// adds more.
//
// # Board
//
// A [Board] shows a set of calc channels on an embedded web dashboard with
// Server-Sent Events updates, a JSON API, local variable writes and
// Prometheus metrics:
//
//	board, _ := pulsecalc.New(
//	    pulsecalc.WithChannel("calc://sum?a=loc://a&b=loc://b&expr=a+b"),
//	    pulsecalc.WithLocal("a", 1),
//	    pulsecalc.WithLocal("b", 2),
//	    pulsecalc.WithPort(9090),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	board.Start(ctx) // blocks until context is cancelled
//
// # Architecture
//
//   - internal/eval: expression compilation and evaluation
//   - internal/calc: the per-calculation worker
//   - internal/source/local: in-process loc:// variables
//   - internal/poller: polled http(s) inputs
//   - internal/store: in-memory channel values with pub/sub
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - internal/record: CBOR recording of channel updates
//   - internal/metrics: Prometheus collectors
//   - dashboard: embedded web UI assets
package pulsecalc
