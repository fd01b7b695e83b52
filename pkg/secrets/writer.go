package secrets

import (
	"io"
	"sort"
	"strings"
	"sync"
)

// MaskingWriter wraps an io.Writer and masks registered secret values before
// writing.
type MaskingWriter struct {
	delegate io.Writer
	masking  *Masking

	mu       sync.RWMutex
	values   []string
	replacer *strings.Replacer
}

// NewMaskingWriter creates a MaskingWriter that masks values in everything
// written to delegate.
func NewMaskingWriter(delegate io.Writer, masking *Masking, values ...string) *MaskingWriter {
	w := &MaskingWriter{
		delegate: delegate,
		masking:  masking,
	}
	w.Register(values...)
	return w
}

// Register adds secret values to mask. Empty values are ignored.
func (w *MaskingWriter) Register(values ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, v := range values {
		if v != "" {
			w.values = append(w.values, v)
		}
	}
	// Longest first, so a secret containing another is masked whole.
	sort.SliceStable(w.values, func(i, j int) bool {
		return len(w.values[i]) > len(w.values[j])
	})

	pairs := make([]string, 0, 2*len(w.values))
	for _, v := range w.values {
		pairs = append(pairs, v, MaskValue(v, w.masking))
	}
	w.replacer = strings.NewReplacer(pairs...)
}

// Write implements io.Writer, masking secrets before writing to the delegate.
func (w *MaskingWriter) Write(p []byte) (n int, err error) {
	w.mu.RLock()
	replacer := w.replacer
	w.mu.RUnlock()

	if replacer == nil {
		return w.delegate.Write(p)
	}

	if _, err := io.WriteString(w.delegate, replacer.Replace(string(p))); err != nil {
		return 0, err
	}
	// Report the original length to keep the io.Writer contract.
	return len(p), nil
}
