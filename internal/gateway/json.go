package gateway

import "encoding/json"

func writeJSON(w jsonWriter, v interface{}) {
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// jsonWriter is the minimal io.Writer subset writeJSON needs, kept
// narrow so it can target http.ResponseWriter without importing net/http
// here.
type jsonWriter interface {
	Write([]byte) (int, error)
}
