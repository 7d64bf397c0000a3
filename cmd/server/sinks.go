package main

import (
	"log"
	"time"

	"voxelstream.ai/internal/observerproto"
	"voxelstream.ai/internal/persistence/chunkdb"
	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/transport/observer"
)

// eventSink fans lifecycle events out to the journal, the chunk index and
// observers. It runs on the coordinating goroutine.
type eventSink struct {
	runID   string
	journal *persistlog.LifecycleLogger
	db      *chunkdb.Store
	hub     *observer.Hub
	log     *log.Logger
	now     func() time.Time

	journalErrs uint64
}

func (s *eventSink) Observe(e chunk.Event) {
	at := s.now()
	coord := [3]int{e.Coord.X, e.Coord.Y, e.Coord.Z}
	if s.journal != nil {
		err := s.journal.WriteLifecycle(persistlog.LifecycleRecord{
			RunID:  s.runID,
			Stamp:  e.Stamp,
			Type:   string(e.Type),
			Coord:  coord,
			From:   e.From.String(),
			To:     e.To.String(),
			Task:   string(e.Task),
			Reason: e.Reason,
			At:     at,
		})
		if err != nil {
			s.journalErrs++
			if s.journalErrs == 1 || s.journalErrs%1000 == 0 {
				s.log.Printf("journal: %v (%d errors)", err, s.journalErrs)
			}
		}
	}
	if s.db != nil && (e.Type == chunk.EventTransition || e.Type == chunk.EventFailed) {
		s.db.RecordEvent(chunkdb.EventRow{
			RunID:  s.runID,
			Stamp:  e.Stamp,
			Type:   string(e.Type),
			Coord:  e.Coord,
			From:   e.From.String(),
			To:     e.To.String(),
			Task:   string(e.Task),
			Reason: e.Reason,
			At:     at,
		})
	}
	if s.hub != nil {
		s.hub.PublishLifecycle(observerproto.LifecycleMsg{
			Type:            observerproto.TypeLifecycle,
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Stamp:           e.Stamp,
			Event:           string(e.Type),
			Coord:           coord,
			From:            e.From.String(),
			To:              e.To.String(),
			Task:            string(e.Task),
			Reason:          e.Reason,
		})
	}
}
