package symbols

import (
	"log"
	"strings"
	"sync"
)

// Normalizer maps between the two spellings an instrument can carry:
// a human-readable exchange:name form (e.g. MCX:NATURALGAS26DEC25) and the
// broker-internal exchange|token form (e.g. MCX|467741). Different
// subsystems produce different spellings for the same instrument, so
// routing cannot rely on string equality alone.
type Normalizer struct {
	mu          sync.RWMutex
	colonToPipe map[string]string
	pipeToColon map[string]string
}

// NewNormalizer creates an empty symbol registry.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		colonToPipe: make(map[string]string),
		pipeToColon: make(map[string]string),
	}
}

// Register records a mapping between the colon and pipe spellings.
func (n *Normalizer) Register(colonForm, pipeForm string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.colonToPipe[colonForm] = pipeForm
	n.pipeToColon[pipeForm] = colonForm
}

// AutoRegister records a mapping from a quote that carries both spellings.
// name is expected in pipe form and displayName in colon form; anything else
// is ignored.
func (n *Normalizer) AutoRegister(name, displayName string) {
	if !strings.Contains(name, "|") || !strings.Contains(displayName, ":") {
		return
	}
	n.mu.RLock()
	_, known := n.pipeToColon[name]
	n.mu.RUnlock()
	if known {
		return
	}
	n.Register(displayName, name)
	log.Printf("symbols: registered mapping %s <-> %s", displayName, name)
}

// Match reports whether two spellings refer to the same instrument:
// textually identical, or linked by a registered mapping.
func (n *Normalizer) Match(a, b string) bool {
	if a == b {
		return true
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.colonToPipe[a] == b || n.pipeToColon[a] == b {
		return true
	}

	// A token spelling cannot be resolved without an explicit mapping.
	return false
}

// ToPipe returns the pipe spelling for a symbol, or "" if unknown.
func (n *Normalizer) ToPipe(symbol string) string {
	if strings.Contains(symbol, "|") {
		return symbol
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.colonToPipe[symbol]
}

// ToColon returns the colon spelling for a symbol, or "" if unknown.
func (n *Normalizer) ToColon(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pipeToColon[symbol]
}

// Forms returns every known spelling of a symbol, starting with the input.
func (n *Normalizer) Forms(symbol string) []string {
	forms := []string{symbol}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if p, ok := n.colonToPipe[symbol]; ok {
		forms = append(forms, p)
	} else if c, ok := n.pipeToColon[symbol]; ok {
		forms = append(forms, c)
	}
	return forms
}
