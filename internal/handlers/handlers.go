package handlers

import (
	"time"

	"photo-ingest/internal/pool"
	"photo-ingest/internal/queue"
)

type Handlers struct {
	store     *queue.Store
	pool      *pool.Pool
	startTime time.Time
}

func New(store *queue.Store, p *pool.Pool) *Handlers {
	return &Handlers{
		store:     store,
		pool:      p,
		startTime: time.Now(),
	}
}
