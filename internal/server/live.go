package server

import (
	"net/http"

	"github.com/frostbyte73/core"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// liveBuffer is the number of chunks a preview client may fall behind
// before it is disconnected. Dropping chunks would corrupt the container.
const liveBuffer = 256

func liveHandler(streams StreamLookup, mediaType string, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if streams == nil {
			http.NotFound(w, r)
			return
		}
		id := chi.URLParam(r, "id")
		st, ok := streams.Lookup(id)
		if !ok || !st.Active() {
			http.NotFound(w, r)
			return
		}

		chunks := make(chan []byte, liveBuffer)
		var overflow core.Fuse
		cancel := st.Subscribe(func(b []byte) {
			select {
			case chunks <- b:
			default:
				overflow.Break()
			}
		})
		defer cancel()

		if mediaType != "" {
			w.Header().Set("Content-Type", mediaType)
		}
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-st.Done():
				return
			case <-overflow.Watch():
				log.Warn().Str("stream", id).Msg("live preview client too slow, disconnecting")
				return
			case b := <-chunks:
				if _, err := w.Write(b); err != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}
}
