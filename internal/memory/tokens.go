package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder counts tokens for a specific encoding key, grounded on the tiktoken-go wrapper pattern used for
// accurate BPE-based counting rather than a char/4 estimate.
type Encoder struct {
	enc *tiktoken.Tiktoken
	key string
}

var (
	encoderCacheMu sync.RWMutex
	encoderCache   = make(map[string]*tiktoken.Tiktoken)
)

// DefaultEncodingKey is used when the configured key is empty or unknown.
const DefaultEncodingKey = "cl100k_base"

// NewEncoder resolves an encoder for the given key, falling back to
// DefaultEncodingKey when the key is unknown.
func NewEncoder(key string) *Encoder {
	if key == "" {
		key = DefaultEncodingKey
	}

	encoderCacheMu.RLock()
	if enc, ok := encoderCache[key]; ok {
		encoderCacheMu.RUnlock()
		return &Encoder{enc: enc, key: key}
	}
	encoderCacheMu.RUnlock()

	enc, err := tiktoken.GetEncoding(key)
	if err != nil {
		key = DefaultEncodingKey
		enc, err = tiktoken.GetEncoding(key)
		if err != nil {
			// No usable encoding available at all; fall back to a
			// deterministic approximation rather than failing construction.
			// Overestimating tokens trims the window early; underestimating
			// risks overflowing the provider's context limit.
			return &Encoder{enc: nil, key: key}
		}
	}

	encoderCacheMu.Lock()
	encoderCache[key] = enc
	encoderCacheMu.Unlock()

	return &Encoder{enc: enc, key: key}
}

// Count returns the token length of text under this encoding.
func (e *Encoder) Count(text string) int {
	if e.enc == nil {
		// Deterministic fallback: slightly over rather than under.
		return len(text)/3 + 1
	}
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}
