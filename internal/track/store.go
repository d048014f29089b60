package track

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sigscreen/sigscreen/internal/signal"
)

// Store persists the signal history. Append writes a new record, Update
// writes a revised version of an existing one, Load returns the latest
// version of every record.
type Store interface {
	Append(ctx context.Context, sig signal.Signal) error
	Update(ctx context.Context, sig signal.Signal) error
	Load(ctx context.Context) ([]signal.Signal, error)
}

// FileStore is an append-only JSONL history. Updates append a newer
// version of the record; Load keeps the last version per ID. Append-only
// keeps writes crash-safe at the cost of file growth.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Append(ctx context.Context, sig signal.Signal) error {
	return s.writeLine(sig)
}

func (s *FileStore) Update(ctx context.Context, sig signal.Signal) error {
	return s.writeLine(sig)
}

func (s *FileStore) writeLine(sig signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open signal store: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append signal: %w", err)
	}
	return nil
}

// Load reads the whole history. A missing file is an empty history, not
// an error. Malformed lines (a torn final write) are skipped.
func (s *FileStore) Load(ctx context.Context) ([]signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open signal store: %w", err)
	}
	defer f.Close()

	latest := make(map[string]signal.Signal)
	order := make([]string, 0)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var sig signal.Signal
		if err := json.Unmarshal(scanner.Bytes(), &sig); err != nil {
			continue
		}
		if sig.ID == "" {
			continue
		}
		if _, seen := latest[sig.ID]; !seen {
			order = append(order, sig.ID)
		}
		latest[sig.ID] = sig
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signal store: %w", err)
	}

	signals := make([]signal.Signal, 0, len(latest))
	for _, id := range order {
		signals = append(signals, latest[id])
	}
	return signals, nil
}
