// Package runner drives the simulated viewer population.
//
// A Runner launches Clients workers, spaced by an arrival model, and each
// worker runs StreamsPerClient sequential streams against a replica picked
// uniformly from Targets:
//
//	r := runner.New(runner.Options{
//		Clients:          100,
//		StreamsPerClient: 3,
//		Targets:          []string{"localhost:50051"},
//		Stagger:          100 * time.Millisecond,
//		Streamer:         grpcclient.NewStreamer(grpcclient.Config{}),
//	})
//	res, err := r.Run(ctx)
//
// # Streamer Interface
//
// The [Streamer] interface is what a worker calls for each stream:
//
//	type Streamer interface {
//		Stream(ctx context.Context, target string, req session.Request, onChunk func(session.Chunk) error) error
//	}
//
// # Arrival Models
//
//   - [ArrivalModelUniform]: clients start one Stagger apart
//   - [ArrivalModelPoisson]: gaps are exponential with mean Stagger
//
// # Error Handling
//
// A failed stream never stops its worker. [ClassifyError] names the failure
// after its gRPC status code, or CONNECTION when the error carries none, and
// the kind is counted in the recorder and the collector.
package runner
