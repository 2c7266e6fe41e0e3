package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/manifest-network/firehose-client/internal/models"
)

// JSONLOutputHandler appends one JSON record per event to a file, for ad-hoc
// extractions without a database. Undo and final transitions are recorded as
// their own events; replaying the log reproduces the canonical view. Gap
// queries are not supported on an append-only log.
type JSONLOutputHandler struct {
	mu         sync.Mutex
	f          *os.File
	enc        *json.Encoder
	cursorPath string
	latest     uint64
}

type jsonlRecord struct {
	Action string     `json:"action"` // "block", "undo" or "final"
	Num    uint64     `json:"num"`
	Hash   string     `json:"hash,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
	Cursor string     `json:"cursor,omitempty"`
	Data   []byte     `json:"data,omitempty"`
}

func NewJSONLOutputHandler(path string) (*JSONLOutputHandler, error) {
	latest, err := scanLatestBlockNum(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	return &JSONLOutputHandler{
		f:          f,
		enc:        json.NewEncoder(f),
		cursorPath: path + ".cursor",
		latest:     latest,
	}, nil
}

// scanLatestBlockNum replays an existing log to recover the highest block
// number written so far, so reopening a file resumes where it left off.
func scanLatestBlockNum(path string) (uint64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening output file: %w", err)
	}
	defer f.Close()

	var latest uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return 0, fmt.Errorf("replaying output file: %w", err)
		}
		if rec.Action == "block" && rec.Num > latest {
			latest = rec.Num
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("replaying output file: %w", err)
	}
	return latest, nil
}

func (h *JSONLOutputHandler) append(rec jsonlRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enc.Encode(rec); err != nil {
		return fmt.Errorf("appending %s record for block %d: %w", rec.Action, rec.Num, err)
	}
	return nil
}

func (h *JSONLOutputHandler) WriteBlock(_ context.Context, block *models.Block) error {
	rec := jsonlRecord{
		Action: "block",
		Num:    block.Num,
		Hash:   block.Hash,
		Cursor: block.Cursor,
		Data:   block.Data,
	}
	if !block.Time.IsZero() {
		t := block.Time
		rec.Time = &t
	}
	if err := h.append(rec); err != nil {
		return err
	}
	h.mu.Lock()
	if block.Num > h.latest {
		h.latest = block.Num
	}
	h.mu.Unlock()
	return nil
}

func (h *JSONLOutputHandler) RetractBlock(_ context.Context, num uint64) error {
	return h.append(jsonlRecord{Action: "undo", Num: num})
}

func (h *JSONLOutputHandler) MarkFinal(_ context.Context, num uint64) error {
	return h.append(jsonlRecord{Action: "final", Num: num})
}

func (h *JSONLOutputHandler) LoadCursor(context.Context) (string, error) {
	data, err := os.ReadFile(h.cursorPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor file: %w", err)
	}
	return string(data), nil
}

func (h *JSONLOutputHandler) SaveCursor(_ context.Context, cursor string) error {
	if err := os.WriteFile(h.cursorPath, []byte(cursor), 0o644); err != nil {
		return fmt.Errorf("writing cursor file: %w", err)
	}
	return nil
}

func (h *JSONLOutputHandler) GetLatestBlockNum(context.Context) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, nil
}

func (h *JSONLOutputHandler) GetMissingBlockNums(context.Context) ([]uint64, error) {
	return nil, nil
}

func (h *JSONLOutputHandler) Close() error {
	return h.f.Close()
}
