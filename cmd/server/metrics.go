package main

import (
	"fmt"
	"net/http"

	"voxelstream.ai/internal/persistence/chunkdb"
	"voxelstream.ai/internal/transport/observer"
)

// metricsHandler writes a minimal Prometheus exposition.
func metricsHandler(r *runner, store *chunkdb.Store, hub *observer.Hub) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := r.Status()

		fmt.Fprintf(rw, "# HELP voxelstream_cycle Update cycles run.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_cycle counter\n")
		fmt.Fprintf(rw, "voxelstream_cycle %d\n", st.Cycle)

		fmt.Fprintf(rw, "# HELP voxelstream_loaded_chunks Chunks held by the streamer.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "voxelstream_loaded_chunks %d\n", st.Loaded)

		fmt.Fprintf(rw, "# HELP voxelstream_in_flight_chunks Chunks with an outstanding task.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_in_flight_chunks gauge\n")
		fmt.Fprintf(rw, "voxelstream_in_flight_chunks %d\n", st.InFlight)

		fmt.Fprintf(rw, "# HELP voxelstream_step_ms Last update duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_step_ms gauge\n")
		fmt.Fprintf(rw, "voxelstream_step_ms %.3f\n", st.StepMS)

		fmt.Fprintf(rw, "# HELP voxelstream_requests_total State requests by verdict.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_requests_total counter\n")
		fmt.Fprintf(rw, "voxelstream_requests_total{verdict=%q} %d\n", "accepted", st.Machine.Accepted)
		fmt.Fprintf(rw, "voxelstream_requests_total{verdict=%q} %d\n", "deferred", st.Machine.Deferred)
		fmt.Fprintf(rw, "voxelstream_requests_total{verdict=%q} %d\n", "rejected", st.Machine.Rejected)

		fmt.Fprintf(rw, "# HELP voxelstream_completions_total Task completions applied.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_completions_total counter\n")
		fmt.Fprintf(rw, "voxelstream_completions_total{result=%q} %d\n", "all", st.Machine.Completed)
		fmt.Fprintf(rw, "voxelstream_completions_total{result=%q} %d\n", "failed", st.Machine.Failed)

		fmt.Fprintf(rw, "# HELP voxelstream_dropped_edits_total Chunks removed with unsaved edits after a failed save.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_dropped_edits_total counter\n")
		fmt.Fprintf(rw, "voxelstream_dropped_edits_total %d\n", st.Machine.Dropped)

		fmt.Fprintf(rw, "# HELP voxelstream_worker_queue_depth Tasks queued per worker.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_worker_queue_depth gauge\n")
		for i, w := range st.Compute {
			fmt.Fprintf(rw, "voxelstream_worker_queue_depth{pool=%q,worker=\"%d\"} %d\n", "compute", i, w.Queued)
		}
		for i, w := range st.IO {
			fmt.Fprintf(rw, "voxelstream_worker_queue_depth{pool=%q,worker=\"%d\"} %d\n", "io", i, w.Queued)
		}

		fmt.Fprintf(rw, "# HELP voxelstream_worker_executed_total Tasks executed per worker.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_worker_executed_total counter\n")
		for i, w := range st.Compute {
			fmt.Fprintf(rw, "voxelstream_worker_executed_total{pool=%q,worker=\"%d\"} %d\n", "compute", i, w.Executed)
		}
		for i, w := range st.IO {
			fmt.Fprintf(rw, "voxelstream_worker_executed_total{pool=%q,worker=\"%d\"} %d\n", "io", i, w.Executed)
		}

		if store != nil {
			s := store.Stats()
			fmt.Fprintf(rw, "# HELP voxelstream_store_ops_total Chunk store operations.\n")
			fmt.Fprintf(rw, "# TYPE voxelstream_store_ops_total counter\n")
			fmt.Fprintf(rw, "voxelstream_store_ops_total{op=%q} %d\n", "load", s.Loads)
			fmt.Fprintf(rw, "voxelstream_store_ops_total{op=%q} %d\n", "hit", s.Hits)
			fmt.Fprintf(rw, "voxelstream_store_ops_total{op=%q} %d\n", "save", s.Saves)

			fmt.Fprintf(rw, "# HELP voxelstream_store_saved_bytes_total Compressed bytes written.\n")
			fmt.Fprintf(rw, "# TYPE voxelstream_store_saved_bytes_total counter\n")
			fmt.Fprintf(rw, "voxelstream_store_saved_bytes_total %d\n", s.SavedBytes)

			fmt.Fprintf(rw, "# HELP voxelstream_store_event_queue Event writer queue.\n")
			fmt.Fprintf(rw, "# TYPE voxelstream_store_event_queue gauge\n")
			fmt.Fprintf(rw, "voxelstream_store_event_queue{metric=%q} %d\n", "depth", s.QueueDepth)
			fmt.Fprintf(rw, "voxelstream_store_event_queue{metric=%q} %d\n", "capacity", s.QueueCapacity)
			fmt.Fprintf(rw, "voxelstream_store_event_queue{metric=%q} %d\n", "dropped", s.EventDrops)
		}

		hs := hub.Stats()
		fmt.Fprintf(rw, "# HELP voxelstream_observer Observer fan-out.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_observer gauge\n")
		fmt.Fprintf(rw, "voxelstream_observer{metric=%q} %d\n", "subscribers", hs.Subscribers)
		fmt.Fprintf(rw, "voxelstream_observer{metric=%q} %d\n", "published", hs.Published)
		fmt.Fprintf(rw, "voxelstream_observer{metric=%q} %d\n", "dropped", hs.Dropped)
	}
}
