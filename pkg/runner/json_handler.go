package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
)

// Event types written by JSONHandler.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventSystem   = "system"
)

// Event is one line of JSONHandler output.
type Event struct {
	Type     string            `json:"type"`
	Progress *runtime.Progress `json:"progress,omitempty"`
	Result   *domain.ResultSet `json:"result,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader *bufio.Reader
	Writer io.Writer

	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) emit(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encoder.Encode(ev)
}

func (h *JSONHandler) Progress(ctx context.Context, p runtime.Progress) error {
	return h.emit(Event{Type: EventProgress, Progress: &p})
}

func (h *JSONHandler) Result(ctx context.Context, rs *domain.ResultSet) error {
	return h.emit(Event{Type: EventResult, Result: rs})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.emit(Event{Type: EventSystem, Message: msg})
}

// Input reads one line. Both a JSON string ("xai") and raw text (xai) are accepted.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	clean, err := SanitizeInput(text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(clean), nil
}
