package store

import (
	"context"
	"log"

	"github.com/yourusername/report-scheduler/pkg/model"
)

// writeOpType defines the type of write operation
type writeOpType int

const (
	opCreateSchedule writeOpType = iota
	opUpdateSchedule
	opDeleteSchedule
	opCreateDashboard
	opCreateChart
	opCreateJob
	opUpdateJob
)

// writeOp represents a single write operation with its response channel
type writeOp struct {
	opType   writeOpType
	data     interface{}
	response chan writeResult
}

// writeResult contains the result of a write operation
type writeResult struct {
	err error
}

// writeQueue serializes database writes through a single goroutine,
// which is what SQLite's single-writer model wants.
type writeQueue struct {
	queue  chan writeOp
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// newWriteQueue creates and starts a new write queue
func newWriteQueue(db *Store) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	wq := &writeQueue{
		queue:  make(chan writeOp, 100),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go wq.processQueue(db)

	return wq
}

// processQueue is the single writer goroutine that processes all write operations sequentially
func (wq *writeQueue) processQueue(db *Store) {
	defer close(wq.done)

	for {
		select {
		case <-wq.ctx.Done():
			// Drain remaining operations before shutting down
			for {
				select {
				case op := <-wq.queue:
					wq.executeOp(db, op)
				default:
					log.Println("[WRITE QUEUE] Shutdown complete")
					return
				}
			}

		case op := <-wq.queue:
			wq.executeOp(db, op)
		}
	}
}

// executeOp executes a single write operation
func (wq *writeQueue) executeOp(db *Store, op writeOp) {
	var result writeResult

	switch op.opType {
	case opCreateSchedule:
		result.err = db.createScheduleDirect(op.data.(*model.Schedule))

	case opUpdateSchedule:
		result.err = db.updateScheduleDirect(op.data.(*model.Schedule))

	case opDeleteSchedule:
		result.err = db.deleteScheduleDirect(op.data.(int64))

	case opCreateDashboard:
		result.err = db.createDashboardDirect(op.data.(*model.Dashboard))

	case opCreateChart:
		result.err = db.createChartDirect(op.data.(*model.Chart))

	case opCreateJob:
		result.err = db.createJobDirect(op.data.(*model.Job))

	case opUpdateJob:
		result.err = db.updateJobDirect(op.data.(*model.Job))
	}

	op.response <- result
}

// enqueue adds a write operation to the queue and waits for the result
func (wq *writeQueue) enqueue(opType writeOpType, data interface{}) error {
	response := make(chan writeResult, 1)

	op := writeOp{
		opType:   opType,
		data:     data,
		response: response,
	}

	select {
	case wq.queue <- op:
	case <-wq.ctx.Done():
		return wq.ctx.Err()
	}

	select {
	case result := <-response:
		return result.err
	case <-wq.ctx.Done():
		return wq.ctx.Err()
	}
}

// shutdown gracefully shuts down the write queue
func (wq *writeQueue) shutdown() {
	log.Println("[WRITE QUEUE] Shutting down...")
	wq.cancel()
	<-wq.done
}
