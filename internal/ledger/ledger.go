// Package ledger persists the mapping of finalized log-file names to their
// current one-time access tokens. The ledger is the sole source of truth for
// which files are downloadable.
package ledger

import (
	"log"
	"sync"

	"meb-console/internal/model"
	"meb-console/internal/secure"
)

type document struct {
	References []model.Reference `json:"references"`
}

type Ledger struct {
	mu   sync.Mutex
	path string
	key  []byte
	doc  document
}

// Open loads the ledger document at path, decrypted with key. A missing or
// unreadable document starts empty; that is logged inside secure.LoadDocument.
func Open(path string, key []byte) *Ledger {
	l := &Ledger{path: path, key: key}
	secure.LoadDocument(path, key, &l.doc)
	return l
}

// Append registers a newly finalized file. An existing entry with the same
// name is replaced rather than duplicated.
func (l *Ledger) Append(ref model.Reference) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.References {
		if l.doc.References[i].Name == ref.Name {
			l.doc.References[i] = ref
			return l.persistLocked()
		}
	}
	l.doc.References = append(l.doc.References, ref)
	return l.persistLocked()
}

// Find returns the reference for name.
func (l *Ledger) Find(name string) (model.Reference, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ref := range l.doc.References {
		if ref.Name == name {
			return ref, true
		}
	}
	return model.Reference{}, false
}

// Replace swaps the entry for name. Returns false if name is not registered.
func (l *Ledger) Replace(name string, ref model.Reference) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.doc.References {
		if l.doc.References[i].Name == name {
			l.doc.References[i] = ref
			if err := l.persistLocked(); err != nil {
				log.Printf("ledger: persist after replace: %v", err)
			}
			return true
		}
	}
	return false
}

// Names returns the set of registered file names. The bot intersects this
// with the log directory; files without a ledger entry stay invisible.
func (l *Ledger) Names() map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make(map[string]struct{}, len(l.doc.References))
	for _, ref := range l.doc.References {
		names[ref.Name] = struct{}{}
	}
	return names
}

func (l *Ledger) persistLocked() error {
	return secure.SaveDocument(l.path, l.key, l.doc)
}
