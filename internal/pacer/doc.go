// Package pacer decides how a synthetic video is chunked and paced.
//
// A [Pacer] maps a [Quality] to a fixed chunk size, draws the delay before
// each chunk, and runs the per-chunk failure trial. It holds no per-stream
// state; every random draw comes from an injected [Source] so tests can
// replay a stream exactly:
//
//	p := pacer.New(pacer.Options{Source: pacer.NewSource(42)})
//	size := p.ChunkSize(pacer.QualityHigh) // 1048576
//	for n := 0; n < p.TotalChunks(); n++ {
//		time.Sleep(p.Delay())
//		if p.ShouldFail() {
//			break
//		}
//	}
package pacer
