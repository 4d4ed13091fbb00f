package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPEntry provides the mountpoint for this service into the shared
// webserver routing tree.
func (c *Coordinator) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/failures", c.httpFailures)
	r.Get("/lastrun", c.httpLastRun)
	r.Get("/logs", c.httpLogsIndex)
	r.Get("/logs/{pkg}", c.httpBuildLog)

	r.Post("/build/{pkg}", c.httpTrigger)

	return r
}

// Triggers returns the channel manual build requests arrive on.  The
// main loop consumes it between automatic runs.
func (c *Coordinator) Triggers() <-chan []string {
	return c.trigger
}

func (c *Coordinator) httpFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := c.FailureRecord()
	if err != nil {
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(failures)
}

func (c *Coordinator) httpLastRun(w http.ResponseWriter, r *http.Request) {
	s := c.LastRun()
	if s == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(s)
}

func (c *Coordinator) httpLogsIndex(w http.ResponseWriter, r *http.Request) {
	names, err := c.st.LoggedPackages()
	if err != nil {
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(names)
}

func (c *Coordinator) httpBuildLog(w http.ResponseWriter, r *http.Request) {
	out, err := c.BuildLog(chi.URLParam(r, "pkg"))
	if err != nil {
		jsonError(w, err, http.StatusInternalServerError)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(out)
}

// httpTrigger queues a manual build of one package.  A full queue
// means a trigger is already waiting and this one is refused.
func (c *Coordinator) httpTrigger(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "pkg")
	select {
	case c.trigger <- []string{pkg}:
		c.l.Info("Manual build queued", "package", pkg)
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusTooManyRequests)
	}
}

func jsonError(w http.ResponseWriter, err error, code int) {
	enc := json.NewEncoder(w)
	w.WriteHeader(code)
	out := struct {
		Error string
	}{
		Error: err.Error(),
	}
	enc.Encode(out)
}
