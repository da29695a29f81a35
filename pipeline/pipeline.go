// Package pipeline moves story records from the scraper to the output
// writers. Records are written in arrival order, one at a time, so an
// interrupted run keeps everything already flushed.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-archive/models"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(story *models.Story) error
	Close() error
	Validate() error
}

// Pipeline validates records and appends them through an OutputWriter.
type Pipeline struct {
	writer  OutputWriter
	storyCh chan *models.Story

	wg sync.WaitGroup

	mu      sync.Mutex // guards closed/err/written/dropped
	closed  bool
	err     error
	written int
	dropped int

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		storyCh:  make(chan *models.Story, 64),
		shutdown: make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.worker()
}

// Process enqueues one record for writing.
func (p *Pipeline) Process(story *models.Story) error {
	if story == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}
	return p.enqueue(story)
}

// Close waits for pending writes and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.storyCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Written reports how many records reached the writer.
func (p *Pipeline) Written() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Dropped reports how many records failed validation.
func (p *Pipeline) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for story := range p.storyCh {
		if !p.prepare(story) {
			p.mu.Lock()
			p.dropped++
			p.mu.Unlock()
			continue
		}
		if err := p.writer.Write(story); err != nil {
			p.setErr(fmt.Errorf("write record: %w", err))
			return
		}
		p.mu.Lock()
		p.written++
		p.mu.Unlock()
	}
}

// prepare enforces record invariants before writing. List fields are
// guaranteed non-nil so serialized cells are stable.
func (p *Pipeline) prepare(story *models.Story) bool {
	if story.URL == "" || story.ID == "" {
		return false
	}
	if story.Tags == nil {
		story.Tags = []string{}
	}
	if story.Characters == nil {
		story.Characters = []string{}
	}
	if story.Relationships == nil {
		story.Relationships = []string{}
	}
	if story.Warnings == nil {
		story.Warnings = []string{}
	}
	if story.Categories == nil {
		story.Categories = []string{}
	}
	return true
}

func (p *Pipeline) enqueue(story *models.Story) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.storyCh <- story:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.storyCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}
