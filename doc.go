// Package kvpipe implements an implicitly-pipelining key-value wire
// client: argument coercion into the tunneled RESP type system, a
// session/pipeline runtime built around an explicit *Session value
// (spec.md §9's own guidance, in place of the thread-local dynamic
// binding a Lisp-heritage client would use), and cluster-aware
// dispatch via the cluster subpackage.
//
// A typical call looks like:
//
//	pool := conn.NewTCPPool(2*time.Second, 8)
//	spec := conn.NodeSpec{Address: "127.0.0.1", Port: 6379}
//	result, err := kvpipe.WithConnection(pool, spec, kvpipe.DefaultFreezer, nil, func(s *kvpipe.Session) error {
//		return commands.Get(s, "mykey")
//	})
package kvpipe
