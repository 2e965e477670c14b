package client

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const draftDebounce = 300 * time.Millisecond

// DraftStore keeps per-conversation input drafts, persisted to a JSON file.
// Writes are debounced so that typing does not hit the disk on every
// keystroke; only the last value within the debounce window is saved.
type DraftStore struct {
	path  string
	delay time.Duration

	mu     sync.Mutex
	drafts map[string]string
	timer  *time.Timer
}

// NewDraftStore opens (or creates) the draft file at path.
func NewDraftStore(path string) (*DraftStore, error) {
	d := &DraftStore{
		path:   path,
		delay:  draftDebounce,
		drafts: make(map[string]string),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("read drafts: %w", err)
	}
	if err := json.Unmarshal(data, &d.drafts); err != nil {
		// A corrupt draft file is not worth failing startup over.
		log.Printf("draft store: discarding unreadable file %s: %v", path, err)
		d.drafts = make(map[string]string)
	}
	return d, nil
}

func draftKey(convID int64) string {
	if convID == 0 {
		return "new"
	}
	return fmt.Sprintf("conv:%d", convID)
}

// Set records the draft for a conversation and schedules a flush.
func (d *DraftStore) Set(convID int64, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		delete(d.drafts, draftKey(convID))
	} else {
		d.drafts[draftKey(convID)] = text
	}
	d.scheduleFlushLocked()
}

// Get returns the saved draft for a conversation, empty if none.
func (d *DraftStore) Get(convID int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drafts[draftKey(convID)]
}

// Clear drops the draft for a conversation, typically after a send.
func (d *DraftStore) Clear(convID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, draftKey(convID))
	d.scheduleFlushLocked()
}

// Flush persists immediately, cancelling any pending debounce timer.
func (d *DraftStore) Flush() error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	data, err := json.Marshal(d.drafts)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal drafts: %w", err)
	}
	return d.write(data)
}

// Each Set resets the timer, so a typing burst produces one write.
func (d *DraftStore) scheduleFlushLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		if err := d.Flush(); err != nil {
			log.Printf("draft store: flush failed: %v", err)
		}
	})
}

func (d *DraftStore) write(data []byte) error {
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create draft directory: %w", err)
		}
	}
	if err := os.WriteFile(d.path, data, 0o600); err != nil {
		return fmt.Errorf("write drafts: %w", err)
	}
	return nil
}
