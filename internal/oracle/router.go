package oracle

// Route names the primary model for a source and the model tried once when
// the primary's reply is malformed.
type Route struct {
	Model    string
	Fallback string
}

// Router is a static source -> route table.
type Router struct {
	routes map[string]Route
	def    Route
}

// NewRouter creates a router. Routes missing a field inherit it from def.
func NewRouter(def Route, routes map[string]Route) *Router {
	r := &Router{routes: make(map[string]Route, len(routes)), def: def}
	for src, rt := range routes {
		if rt.Model == "" {
			rt.Model = def.Model
		}
		if rt.Fallback == "" {
			rt.Fallback = def.Fallback
		}
		r.routes[src] = rt
	}
	return r
}

// Route returns the route for source, or the default.
func (r *Router) Route(source string) Route {
	if rt, ok := r.routes[source]; ok {
		return rt
	}
	return r.def
}
