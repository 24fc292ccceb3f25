package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/model"
)

// Line prefixes of the stdout control channel.
const (
	ProgressPrefix = "PROGRESS: "
	ResultPrefix   = "RESULT: "
)

// Reporter receives a run's progress records and its final result.
type Reporter interface {
	Progress(p model.Progress)
	Result(r model.Result)
}

// LineReporter writes one prefixed JSON line per record.
type LineReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineReporter writes records to w.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

func (r *LineReporter) Progress(p model.Progress) { r.write(ProgressPrefix, p) }

func (r *LineReporter) Result(res model.Result) { r.write(ResultPrefix, res) }

func (r *LineReporter) write(prefix string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("pipeline: encode record", zap.Error(err))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.w, "%s%s\n", prefix, b); err != nil {
		zap.L().Warn("pipeline: write record", zap.Error(err))
	}
}

// Discard drops every record.
type Discard struct{}

func (Discard) Progress(model.Progress) {}
func (Discard) Result(model.Result)     {}

// Tee fans records out to several reporters.
type Tee []Reporter

func (t Tee) Progress(p model.Progress) {
	for _, r := range t {
		r.Progress(p)
	}
}

func (t Tee) Result(res model.Result) {
	for _, r := range t {
		r.Result(res)
	}
}
