package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"loftergrab/internal/model"
	"loftergrab/internal/report"
)

// Storage persists named artifacts under a scope. The filesystem
// implementation lives in internal/storage; tests substitute their own.
type Storage interface {
	// Write stores data under the given scope and file name, creating
	// the scope if needed and replacing any previous content.
	Write(scope, name string, data []byte) error
}

// Persister writes the per-post artifacts of a finished fetch: the full
// thread as JSON plus a compact plain-text transcript.
type Persister struct {
	storage Storage
	logger  *slog.Logger
}

// PersisterOption is a functional option for configuring a Persister.
type PersisterOption func(*Persister)

// WithPersisterLogger sets the logger for persistence failures.
// If not set, slog.Default() is used.
func WithPersisterLogger(logger *slog.Logger) PersisterOption {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPersister creates a Persister on top of the given storage.
func NewPersister(storage Storage, opts ...PersisterOption) *Persister {
	p := &Persister{
		storage: storage,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Persist writes both artifacts for one fetched thread. The artifacts
// are written independently: a failure is logged and does not stop the
// other artifact. The returned error reports the first failure, if any.
func (p *Persister) Persist(target model.Target, thread model.Thread, scope string) error {
	var firstErr error

	jsonName := fmt.Sprintf("comments_%s_%s.json", target.PostID, target.BlogID)
	data, err := encodeThread(thread)
	if err == nil {
		err = p.storage.Write(scope, jsonName, data)
	}
	if err != nil {
		p.logger.Warn("failed to write thread JSON",
			"scope", scope,
			"name", jsonName,
			"error", err,
		)
		firstErr = err
	} else {
		p.logger.Debug("wrote thread JSON", "scope", scope, "name", jsonName)
	}

	textName := fmt.Sprintf("comments_formatted_%s_%s.txt", target.PostID, target.BlogID)
	if err := p.storage.Write(scope, textName, []byte(report.Transcript(thread))); err != nil {
		p.logger.Warn("failed to write thread transcript",
			"scope", scope,
			"name", textName,
			"error", err,
		)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		p.logger.Debug("wrote thread transcript", "scope", scope, "name", textName)
	}

	return firstErr
}

// encodeThread serializes a thread as indented JSON with HTML escaping
// disabled so CJK text and URLs stay readable in the artifact.
func encodeThread(thread model.Thread) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(thread); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
