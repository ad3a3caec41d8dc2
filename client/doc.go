// Package client provides the Go SDK for issuing key-value commands against
// a remote state-store service and observing per-key change notifications.
// It talks to the service through a transport binding (see
// pkt.systems/statestore/transport) and stays agnostic of the wire protocol.
//
// # Quick start
//
// Construct a client from a transport binding and connection monitor. The
// NATS binding in transport/natstransport is the stock choice:
//
//	ctx := context.Background()
//	tr, err := natstransport.Dial(ctx, natstransport.Config{
//	    URL:      "nats://127.0.0.1:4222",
//	    ClientID: "worker-1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cli, err := client.New(ctx, tr.Binding(), tr.Monitor())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cli.Close()
//
//	resp, err := cli.Set(ctx, []byte("orders"), []byte(`{"state":"open"}`),
//	    10*time.Second, client.SetOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("applied:", resp.Value)
//
// Mutations accept an optional fencing token (an hlc.Timestamp) so stale
// writers are rejected by the service; see the hlc package for issuing them.
//
// # Observing keys
//
// Observe registers interest in a key and returns a KeyObservation whose
// Recv method yields change notifications in service delivery order:
//
//	obs, err := cli.Observe(ctx, []byte("orders"), 10*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    n, _, err := obs.Value.Recv(ctx)
//	    if err != nil {
//	        break // io.EOF once the observation ends
//	    }
//	    fmt.Printf("%s %s\n", n.Operation.Kind, n.Key)
//	}
//
// The service drops all server-side observations when the connection is
// lost, so the client mirrors that: every live observation ends with io.EOF
// on disconnect and must be re-established with a fresh Observe call.
package client
