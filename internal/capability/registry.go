package capability

import (
	"fmt"
	"sync"
)

// Registry is the process-wide module registry keyed by role name
// ("vad", "asr", "llm", "tts"), populated at startup and consulted by the
// Orchestrator at turn time rather than cached on the Session — this is
// what makes hot-swapping a backend mid-process observable immediately.
type Registry struct {
	mu  sync.RWMutex
	vad *Router[VAD]
	asr *Router[ASR]
	llm *Router[LLM]
	tts *Router[TTS]

	activeVAD string
	activeASR string
	activeLLM string
	activeTTS string
}

// NewRegistry builds an empty registry; backends are added via RegisterX.
func NewRegistry() *Registry {
	return &Registry{
		vad: NewRouter[VAD](nil, ""),
		asr: NewRouter[ASR](nil, ""),
		llm: NewRouter[LLM](nil, ""),
		tts: NewRouter[TTS](nil, ""),
	}
}

// RegisterVAD adds a named VAD backend. The first registered backend
// becomes active by default.
func (r *Registry) RegisterVAD(name string, v VAD) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad.Register(name, v)
	if r.activeVAD == "" {
		r.activeVAD = name
	}
}

func (r *Registry) RegisterASR(name string, a ASR) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr.Register(name, a)
	if r.activeASR == "" {
		r.activeASR = name
	}
}

func (r *Registry) RegisterLLM(name string, l LLM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.Register(name, l)
	if r.activeLLM == "" {
		r.activeLLM = name
	}
}

func (r *Registry) RegisterTTS(name string, t TTS) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.Register(name, t)
	if r.activeTTS == "" {
		r.activeTTS = name
	}
}

// SetActive swaps which named backend is current for a role. Returns an
// error if the role is unknown or the name was never registered.
func (r *Registry) SetActive(role, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch role {
	case "vad":
		if !r.vad.Has(name) {
			return fmt.Errorf("capability: unknown vad backend %q", name)
		}
		r.activeVAD = name
	case "asr":
		if !r.asr.Has(name) {
			return fmt.Errorf("capability: unknown asr backend %q", name)
		}
		r.activeASR = name
	case "llm":
		if !r.llm.Has(name) {
			return fmt.Errorf("capability: unknown llm backend %q", name)
		}
		r.activeLLM = name
	case "tts":
		if !r.tts.Has(name) {
			return fmt.Errorf("capability: unknown tts backend %q", name)
		}
		r.activeTTS = name
	default:
		return fmt.Errorf("capability: unknown role %q", role)
	}
	return nil
}

// ActiveVAD resolves the currently active VAD backend, if any is registered.
func (r *Registry) ActiveVAD() (VAD, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeVAD == "" {
		return nil, false
	}
	v, err := r.vad.Route(r.activeVAD)
	return v, err == nil
}

// ActiveASR resolves the currently active ASR backend, if any is registered.
func (r *Registry) ActiveASR() (ASR, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeASR == "" {
		return nil, false
	}
	a, err := r.asr.Route(r.activeASR)
	return a, err == nil
}

// ActiveLLM resolves the currently active LLM backend, if any is registered.
func (r *Registry) ActiveLLM() (LLM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeLLM == "" {
		return nil, false
	}
	l, err := r.llm.Route(r.activeLLM)
	return l, err == nil
}

// ActiveTTS resolves the currently active TTS backend. TTS is optional —
// a false return means "text-only mode", not an error.
func (r *Registry) ActiveTTS() (TTS, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeTTS == "" {
		return nil, false
	}
	t, err := r.tts.Route(r.activeTTS)
	return t, err == nil
}

// Names reports the registered backend names and active selection per role,
// for MODULE_STATUS_REPORT responses.
func (r *Registry) Names() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]map[string]any{
		"vad": {"backends": r.vad.Engines(), "active": r.activeVAD},
		"asr": {"backends": r.asr.Engines(), "active": r.activeASR},
		"llm": {"backends": r.llm.Engines(), "active": r.activeLLM},
		"tts": {"backends": r.tts.Engines(), "active": r.activeTTS},
	}
}
