package assistant

import "sync"

// transcripts holds one bounded conversation per key.
type transcripts struct {
	mu      sync.RWMutex
	entries map[string]*transcript
	limit   int // max stored turns, 0 = unbounded
}

type transcript struct {
	mu    sync.Mutex
	turns []Turn
}

func newTranscripts(limit int) *transcripts {
	return &transcripts{entries: make(map[string]*transcript), limit: limit}
}

func (t *transcripts) get(key string) *transcript {
	t.mu.RLock()
	tr, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return tr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok = t.entries[key]; ok {
		return tr
	}
	tr = &transcript{}
	t.entries[key] = tr
	return tr
}

// append adds turns and drops the oldest ones beyond the limit.
func (t *transcripts) append(key string, turns ...Turn) {
	tr := t.get(key)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.turns = append(tr.turns, turns...)
	if t.limit > 0 && len(tr.turns) > t.limit {
		tr.turns = append([]Turn(nil), tr.turns[len(tr.turns)-t.limit:]...)
	}
}

// dropLast removes the newest turn if it is still turn.
func (t *transcripts) dropLast(key string, turn Turn) {
	tr := t.get(key)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if n := len(tr.turns); n > 0 && tr.turns[n-1] == turn {
		tr.turns = tr.turns[:n-1]
	}
}

// window returns a copy of the stored turns, starting at a user turn.
func (t *transcripts) window(key string) []Turn {
	tr := t.get(key)
	tr.mu.Lock()
	defer tr.mu.Unlock()

	turns := tr.turns
	for len(turns) > 0 && turns[0].Role != RoleUser {
		turns = turns[1:]
	}
	return append([]Turn(nil), turns...)
}

func (t *transcripts) reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *transcripts) size(key string) int {
	tr := t.get(key)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.turns)
}
