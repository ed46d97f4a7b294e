package titleindex

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matsen/paperfeed/internal/reference"
	"github.com/matsen/paperfeed/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	initial map[string]string
	appends [][2]string
	failOn  string
}

func (m *memStore) Load() (map[string]string, error) {
	out := make(map[string]string, len(m.initial))
	for k, v := range m.initial {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Append(title, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if title == m.failOn {
		return errors.New("disk full")
	}
	m.appends = append(m.appends, [2]string{title, key})
	return nil
}

func TestContains_CaseInsensitive(t *testing.T) {
	idx, err := Open(&memStore{initial: map[string]string{"neural asr": "K1"}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for _, title := range []string{"neural asr", "Neural ASR", "NEURAL ASR"} {
		if !idx.Contains(title) {
			t.Errorf("Contains(%q) = false, want true", title)
		}
	}
	if idx.Contains("neural asr 2") {
		t.Error("Contains() = true for unknown title")
	}
}

func TestRecord_Idempotent(t *testing.T) {
	store := &memStore{}
	idx, err := Open(store)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := idx.Record("Speech Separation", "K9"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if !idx.Contains("speech separation") {
		t.Error("Contains() = false after Record")
	}
	if len(store.appends) != 1 {
		t.Errorf("store saw %d appends, want 1", len(store.appends))
	}
	if store.appends[0][0] != "speech separation" {
		t.Errorf("stored title = %q, want normalized", store.appends[0][0])
	}
	if k, _ := idx.Key("SPEECH separation"); k != "K9" {
		t.Errorf("Key() = %q, want K9", k)
	}
}

func TestRecord_StoreFailureLeavesMemoryUntouched(t *testing.T) {
	idx, _ := Open(&memStore{failOn: "broken"})
	if err := idx.Record("Broken", "K"); err == nil {
		t.Fatal("Record() error = nil, want store error")
	}
	if idx.Contains("broken") {
		t.Error("Contains() = true after failed append")
	}
}

func TestRecord_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.tsv")

	idx, err := Open(storage.NewTitleFile(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := idx.Record("Neural ASR", "K1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	reopened, err := Open(storage.NewTitleFile(path))
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	if !reopened.Contains("neural asr") {
		t.Error("title lost across reopen")
	}
}

func TestRecord_Concurrent(t *testing.T) {
	store := &memStore{}
	idx, _ := Open(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = idx.Record("Same Title", "K")
		}()
	}
	wg.Wait()

	if len(store.appends) != 1 {
		t.Errorf("store saw %d appends for one title, want 1", len(store.appends))
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestOnce_CollapsesInflight(t *testing.T) {
	idx, _ := Open(&memStore{})

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (reference.Item, error) {
		calls.Add(1)
		<-release
		return reference.Item{Key: "NEW"}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := idx.Once("Shared Reference", fn)
			if err == nil {
				results[i] = item.Key
			}
		}(i)
	}

	// Give every goroutine time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fn ran %d times, want 1", calls.Load())
	}
	for i, k := range results {
		if k != "NEW" {
			t.Errorf("results[%d] = %q, want NEW", i, k)
		}
	}
}
