package exam

// Handler pairs the validator and transformer for one exam type. Both halves
// are required; the registry refuses lookups for types missing either.
type Handler struct {
	Validator   Validator
	Transformer Transformer
}

// Registry maps exam types to their handlers. Registration happens at startup
// only, lookups are read-only afterwards, so no locking is needed.
type Registry struct {
	handlers map[ExamType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ExamType]Handler)}
}

func (r *Registry) Register(t ExamType, v Validator, tr Transformer) {
	if v == nil || tr == nil {
		panic("exam: handler registration requires both a validator and a transformer")
	}
	r.handlers[t] = Handler{Validator: v, Transformer: tr}
}

// Handler returns the handler for t, failing closed for unregistered types.
func (r *Registry) Handler(t ExamType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) Supported() []ExamType {
	types := make([]ExamType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
